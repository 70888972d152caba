// Package bili talks to the bilibili REST API. The reconciler and worker only
// depend on the Client and Video interfaces so tests can substitute fakes.
package bili

import "context"

// Credential carries the cookie-based session tokens.
type Credential struct {
	SessData    string
	BiliJct     string
	Buvid3      string
	Buvid4      string
	DedeUserID  string
	AcTimeValue string
}

// EpisodeInfo is one entry of a feed's remote episode list. The reconciler
// persists these verbatim as a pod's snapshot.
type EpisodeInfo struct {
	Bvid        string `json:"bvid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
	Image       string `json:"image"`
	Pubdate     int64  `json:"pubdate"`
}

// PodInfo is the remote metadata for a user or collection feed.
type PodInfo struct {
	Title       string
	Description string
	CoverArt    string
	Author      string
	Link        string
	Episodes    []EpisodeInfo
}

// StreamLayout classifies the remote stream offering. The layout decides
// which ffmpeg invocation, if any, runs after the fetch.
type StreamLayout int

const (
	// LayoutFLV is the legacy combined container; needs a remux.
	LayoutFLV StreamLayout = iota
	// LayoutMP4 is a modern combined container; a copy or audio extraction suffices.
	LayoutMP4
	// LayoutDASH is separate video and audio elementary streams.
	LayoutDASH
)

// StreamSet is the resolved set of source URLs for one video.
// Audio is empty for the combined layouts; Video is empty when only an
// audio pull is requested against a DASH offering.
type StreamSet struct {
	Layout StreamLayout
	Video  string
	Audio  string
}

// VideoInfo is the per-video metadata used by the fetch orchestrator.
type VideoInfo struct {
	Bvid    string
	Cid     int64
	Title   string
	Dynamic string
}

// Video exposes the per-video capabilities: metadata, stream resolution and
// the endorsement actions.
type Video interface {
	Info(ctx context.Context) (*VideoInfo, error)
	Streams(ctx context.Context, videoQuality, audioQuality string) (*StreamSet, error)
	Like(ctx context.Context) error
	Coin(ctx context.Context, count int) error
	Favorite(ctx context.Context, mediaID int64) error
	Triple(ctx context.Context) error
}

// Client resolves feed-level metadata and hands out Video objects.
type Client interface {
	// UserInfo fetches profile plus the first page of videos for a user feed.
	UserInfo(ctx context.Context, uid int64, pageSize int, keyword string) (*PodInfo, error)
	// CollectionInfo fetches metadata plus episodes for a collection feed.
	CollectionInfo(ctx context.Context, sid int64, pageSize int) (*PodInfo, error)
	Video(bvid string) Video
	// CheckCredential verifies the configured session is logged in.
	CheckCredential(ctx context.Context) error
	// RefreshCredential renews the session cookies when possible.
	RefreshCredential(ctx context.Context) error
}
