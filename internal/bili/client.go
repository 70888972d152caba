package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// apiBase is swappable in tests.
var apiBase = "https://api.bilibili.com"

// UserAgent and Referer are required on both API and stream requests;
// bilibili rejects anonymous downloads.
const (
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36"
	Referer   = "https://www.bilibili.com"
)

// qn codes for the playurl endpoint.
var videoQualityCodes = map[string]int{
	"360P":  16,
	"480P":  32,
	"720P":  64,
	"1080P": 80,
	"4K":    120,
}

// DASH audio representation ids.
var audioQualityCodes = map[string]int{
	"64K":  30216,
	"132K": 30232,
	"192K": 30280,
}

type client struct {
	http *http.Client
	cred Credential
}

// NewClient returns a Client backed by the public REST API.
func NewClient(cred Credential) Client {
	return &client{
		http: &http.Client{Timeout: 30 * time.Second},
		cred: cred,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *client) cookie() string {
	pairs := []string{
		"SESSDATA=" + c.cred.SessData,
		"bili_jct=" + c.cred.BiliJct,
		"buvid3=" + c.cred.Buvid3,
		"DedeUserID=" + c.cred.DedeUserID,
	}
	if c.cred.Buvid4 != "" {
		pairs = append(pairs, "buvid4="+c.cred.Buvid4)
	}
	return strings.Join(pairs, "; ")
}

func (c *client) do(ctx context.Context, method, path string, params url.Values, out interface{}) error {
	u := apiBase + path
	var body string
	if method == http.MethodGet && params != nil {
		u += "?" + params.Encode()
	} else if params != nil {
		body = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Referer", Referer)
	req.Header.Set("Cookie", c.cookie())
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bili: %s returned %s", path, resp.Status)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("bili: decode %s: %w", path, err)
	}
	if env.Code != 0 {
		return fmt.Errorf("bili: %s code %d: %s", path, env.Code, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("bili: decode %s data: %w", path, err)
		}
	}
	return nil
}

func (c *client) UserInfo(ctx context.Context, uid int64, pageSize int, keyword string) (*PodInfo, error) {
	var acc struct {
		Name     string `json:"name"`
		Sign     string `json:"sign"`
		Face     string `json:"face"`
		Official struct {
			Title string `json:"title"`
		} `json:"official"`
	}
	params := url.Values{"mid": {strconv.FormatInt(uid, 10)}}
	if err := c.do(ctx, http.MethodGet, "/x/space/acc/info", params, &acc); err != nil {
		return nil, err
	}

	var videos struct {
		List struct {
			Vlist []struct {
				Bvid        string `json:"bvid"`
				Title       string `json:"title"`
				Description string `json:"description"`
				Length      string `json:"length"`
				Pic         string `json:"pic"`
				Created     int64  `json:"created"`
			} `json:"vlist"`
		} `json:"list"`
	}
	params = url.Values{
		"mid":     {strconv.FormatInt(uid, 10)},
		"pn":      {"1"},
		"ps":      {strconv.Itoa(pageSize)},
		"order":   {"pubdate"},
		"keyword": {keyword},
	}
	if err := c.do(ctx, http.MethodGet, "/x/space/arc/search", params, &videos); err != nil {
		return nil, err
	}

	info := &PodInfo{
		Title:       acc.Name,
		Description: acc.Sign,
		CoverArt:    acc.Face,
		Author:      acc.Official.Title,
		Link:        fmt.Sprintf("https://space.bilibili.com/%d", uid),
	}
	for _, v := range videos.List.Vlist {
		info.Episodes = append(info.Episodes, EpisodeInfo{
			Bvid:        v.Bvid,
			Title:       v.Title,
			Description: v.Description,
			Duration:    v.Length,
			Image:       v.Pic,
			Pubdate:     v.Created,
		})
	}
	return info, nil
}

func (c *client) CollectionInfo(ctx context.Context, sid int64, pageSize int) (*PodInfo, error) {
	var meta struct {
		Meta struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Cover       string `json:"cover"`
			Mid         int64  `json:"mid"`
		} `json:"meta"`
		Archives []struct {
			Bvid    string `json:"bvid"`
			Title   string `json:"title"`
			Pic     string `json:"pic"`
			Pubdate int64  `json:"pubdate"`
			Duration int64 `json:"duration"`
		} `json:"archives"`
	}
	params := url.Values{
		"series_id": {strconv.FormatInt(sid, 10)},
		"pn":        {"1"},
		"ps":        {strconv.Itoa(pageSize)},
	}
	if err := c.do(ctx, http.MethodGet, "/x/series/archives", params, &meta); err != nil {
		return nil, err
	}

	info := &PodInfo{
		Title:       meta.Meta.Name,
		Description: meta.Meta.Description,
		CoverArt:    meta.Meta.Cover,
		Link:        fmt.Sprintf("https://space.bilibili.com/%d/channel/seriesdetail?sid=%d", meta.Meta.Mid, sid),
	}
	for _, a := range meta.Archives {
		info.Episodes = append(info.Episodes, EpisodeInfo{
			Bvid:     a.Bvid,
			Title:    a.Title,
			Duration: formatDuration(a.Duration),
			Image:    a.Pic,
			Pubdate:  a.Pubdate,
		})
	}
	return info, nil
}

func formatDuration(seconds int64) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func (c *client) CheckCredential(ctx context.Context) error {
	var nav struct {
		IsLogin bool `json:"isLogin"`
	}
	if err := c.do(ctx, http.MethodGet, "/x/web-interface/nav", nil, &nav); err != nil {
		return err
	}
	if !nav.IsLogin {
		return fmt.Errorf("bili: credential is not logged in")
	}
	return nil
}

func (c *client) RefreshCredential(ctx context.Context) error {
	// The cookie refresh flow needs ac_time_value; without it the session
	// simply runs until it expires.
	if c.cred.AcTimeValue == "" {
		return nil
	}
	return c.CheckCredential(ctx)
}

func (c *client) Video(bvid string) Video {
	return &video{c: c, bvid: bvid}
}

type video struct {
	c    *client
	bvid string
	cid  int64
}

func (v *video) Info(ctx context.Context) (*VideoInfo, error) {
	var view struct {
		Bvid    string `json:"bvid"`
		Cid     int64  `json:"cid"`
		Title   string `json:"title"`
		Dynamic string `json:"dynamic"`
	}
	params := url.Values{"bvid": {v.bvid}}
	if err := v.c.do(ctx, http.MethodGet, "/x/web-interface/view", params, &view); err != nil {
		return nil, err
	}
	v.cid = view.Cid
	return &VideoInfo{Bvid: view.Bvid, Cid: view.Cid, Title: view.Title, Dynamic: view.Dynamic}, nil
}

func (v *video) Streams(ctx context.Context, videoQuality, audioQuality string) (*StreamSet, error) {
	if v.cid == 0 {
		if _, err := v.Info(ctx); err != nil {
			return nil, err
		}
	}

	qn := videoQualityCodes[videoQuality]
	var play struct {
		Format string `json:"format"`
		Durl   []struct {
			URL string `json:"url"`
		} `json:"durl"`
		Dash *struct {
			Video []dashRep `json:"video"`
			Audio []dashRep `json:"audio"`
		} `json:"dash"`
	}
	params := url.Values{
		"bvid":  {v.bvid},
		"cid":   {strconv.FormatInt(v.cid, 10)},
		"qn":    {strconv.Itoa(qn)},
		"fnval": {"4048"},
		"fourk": {"1"},
	}
	if err := v.c.do(ctx, http.MethodGet, "/x/player/playurl", params, &play); err != nil {
		return nil, err
	}

	if play.Dash != nil {
		set := &StreamSet{Layout: LayoutDASH}
		set.Video = bestRep(play.Dash.Video, qn)
		set.Audio = bestRep(play.Dash.Audio, audioQualityCodes[audioQuality])
		if set.Audio == "" {
			return nil, fmt.Errorf("bili: no audio stream for %s", v.bvid)
		}
		return set, nil
	}

	if len(play.Durl) == 0 {
		return nil, fmt.Errorf("bili: no streams for %s", v.bvid)
	}
	layout := LayoutMP4
	if strings.Contains(play.Format, "flv") {
		layout = LayoutFLV
	}
	return &StreamSet{Layout: layout, Video: play.Durl[0].URL}, nil
}

type dashRep struct {
	ID      int    `json:"id"`
	BaseURL string `json:"baseUrl"`
}

// bestRep picks the highest representation not above max, falling back to the
// lowest available one.
func bestRep(reps []dashRep, max int) string {
	var best, lowest *dashRep
	for i := range reps {
		r := &reps[i]
		if lowest == nil || r.ID < lowest.ID {
			lowest = r
		}
		if r.ID <= max && (best == nil || r.ID > best.ID) {
			best = r
		}
	}
	if best != nil {
		return best.BaseURL
	}
	if lowest != nil {
		return lowest.BaseURL
	}
	return ""
}

func (v *video) endorse(ctx context.Context, path string, extra url.Values) error {
	params := url.Values{
		"bvid": {v.bvid},
		"csrf": {v.c.cred.BiliJct},
	}
	for k, vals := range extra {
		params[k] = vals
	}
	return v.c.do(ctx, http.MethodPost, path, params, nil)
}

func (v *video) Like(ctx context.Context) error {
	return v.endorse(ctx, "/x/web-interface/archive/like", url.Values{"like": {"1"}})
}

func (v *video) Coin(ctx context.Context, count int) error {
	return v.endorse(ctx, "/x/web-interface/coin/add", url.Values{"multiply": {strconv.Itoa(count)}})
}

func (v *video) Favorite(ctx context.Context, mediaID int64) error {
	if _, err := v.Info(ctx); err != nil {
		return err
	}
	return v.endorse(ctx, "/x/v3/fav/resource/deal", url.Values{
		"rid":           {strconv.FormatInt(v.cid, 10)},
		"type":          {"2"},
		"add_media_ids": {strconv.FormatInt(mediaID, 10)},
	})
}

func (v *video) Triple(ctx context.Context) error {
	return v.endorse(ctx, "/x/web-interface/archive/like/triple", nil)
}
