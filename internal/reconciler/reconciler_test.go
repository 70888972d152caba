package reconciler

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bilipod/internal/bili"
	"bilipod/internal/models"
)

// fakeStore is an in-memory Store matching the persisted semantics: episode
// inserts never overwrite an existing identity.
type fakeStore struct {
	mu       sync.Mutex
	pods     map[string]*models.Pod
	episodes map[models.EpisodeKey]*models.Episode
	deleted  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pods:     make(map[string]*models.Pod),
		episodes: make(map[models.EpisodeKey]*models.Episode),
	}
}

func (s *fakeStore) InsertPod(pod *models.Pod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pods[pod.FeedID] = pod
	return nil
}

func (s *fakeStore) Pod(feedID string) (*models.Pod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pod, ok := s.pods[feedID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return pod, nil
}

func (s *fakeStore) Pods() ([]*models.Pod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pods := make([]*models.Pod, 0, len(s.pods))
	for _, pod := range s.pods {
		pods = append(pods, pod)
	}
	sort.Slice(pods, func(i, j int) bool { return pods[i].FeedID < pods[j].FeedID })
	return pods, nil
}

func (s *fakeStore) PodsUpdatedSince(ts int64) ([]*models.Pod, error) {
	pods, _ := s.Pods()
	var out []*models.Pod
	for _, pod := range pods {
		if pod.UpdateAt >= ts {
			out = append(out, pod)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdatePodSnapshot(feedID string, episodes models.EpisodeList, updateAt int64) error {
	pod, err := s.Pod(feedID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pod.Episodes = episodes
	pod.UpdateAt = updateAt
	return nil
}

func (s *fakeStore) KnownFeed(stem string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, plain := s.pods[stem]
	_, prefixed := s.pods["feed."+stem]
	return plain || prefixed, nil
}

func (s *fakeStore) InsertEpisodes(episodes []*models.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ep := range episodes {
		if _, ok := s.episodes[ep.Key()]; ok {
			continue
		}
		clone := *ep
		s.episodes[ep.Key()] = &clone
	}
	return nil
}

func (s *fakeStore) Episode(key models.EpisodeKey) (*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ep, nil
}

func (s *fakeStore) HasEpisode(key models.EpisodeKey) (bool, error) {
	_, err := s.Episode(key)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *fakeStore) HasEpisodeAt(location string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ep := range s.episodes {
		if ep.Location == location {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) MarkAllUntracked() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ep := range s.episodes {
		ep.OnTrack = false
	}
	return nil
}

func (s *fakeStore) MarkOnTrack(key models.EpisodeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep, ok := s.episodes[key]; ok {
		ep.OnTrack = true
	}
	return nil
}

func (s *fakeStore) UntrackedEpisodes() ([]*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Episode
	for _, ep := range s.episodes {
		if !ep.OnTrack && ep.Status != models.StatusDeleted {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkDeleted(key models.EpisodeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep, ok := s.episodes[key]; ok {
		ep.Status = models.StatusDeleted
		s.deleted++
	}
	return nil
}

type fakeClient struct {
	info *bili.PodInfo
	err  error
}

func (c *fakeClient) UserInfo(ctx context.Context, uid int64, pageSize int, keyword string) (*bili.PodInfo, error) {
	return c.info, c.err
}

func (c *fakeClient) CollectionInfo(ctx context.Context, sid int64, pageSize int) (*bili.PodInfo, error) {
	return c.info, c.err
}

func (c *fakeClient) Video(bvid string) bili.Video          { return nil }
func (c *fakeClient) CheckCredential(ctx context.Context) error   { return nil }
func (c *fakeClient) RefreshCredential(ctx context.Context) error { return nil }

// fakeBatch marks every episode downloaded and materializes its media file.
type fakeBatch struct{ runs int }

func (b *fakeBatch) Run(ctx context.Context, episodes []*models.Episode) []*models.Episode {
	b.runs++
	for _, ep := range episodes {
		if err := os.WriteFile(ep.Location, []byte("media"), 0o644); err != nil {
			continue
		}
		ep.Status = models.StatusDownloaded
		ep.SetSize()
	}
	return nil
}

func epInfo(bvid string, pubdate int64) bili.EpisodeInfo {
	return bili.EpisodeInfo{
		Bvid:     bvid,
		Title:    "episode " + bvid,
		Duration: "12:34",
		Pubdate:  pubdate,
	}
}

func testPod(t *testing.T, dataDir string) *models.Pod {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "media"), 0o755))
	return models.NewPod(models.Pod{
		FeedID:       "feed.tech",
		UID:          42,
		Title:        "Tech Weekly",
		PageSize:     10,
		Format:       "audio",
		Quality:      "low",
		PlaylistSort: "desc",
		KeepLast:     10,
		OPML:         true,
		Lang:         "zh-cn",
		DataDir:      dataDir,
		BaseURL:      "http://localhost:5728",
	})
}

func newTestReconciler(store Store, client bili.Client, batch Batch, dataDir string) *Reconciler {
	return New(store, client, batch, NewSignal(), dataDir, zap.NewNop())
}

func TestInitializeDownloadsAndGenerates(t *testing.T) {
	dataDir := t.TempDir()
	store := newFakeStore()
	batch := &fakeBatch{}
	client := &fakeClient{info: &bili.PodInfo{
		Title:    "Tech Weekly",
		Author:   "someone",
		Episodes: []bili.EpisodeInfo{epInfo("BV1aaa", 100), epInfo("BV1bbb", 200)},
	}}

	rec := newTestReconciler(store, client, batch, dataDir)
	pod := testPod(t, dataDir)

	require.NoError(t, rec.Initialize(context.Background(), []*models.Pod{pod}))

	assert.Equal(t, 1, batch.runs)
	for _, bvid := range []string{"BV1aaa", "BV1bbb"} {
		ep, err := store.Episode(models.EpisodeKey{Bvid: bvid, Quality: "low", Format: "audio"})
		require.NoError(t, err, bvid)
		assert.Equal(t, models.StatusDownloaded, ep.Status)
		assert.True(t, ep.OnTrack)
		assert.FileExists(t, ep.Location)
	}
	assert.FileExists(t, filepath.Join(dataDir, "tech.xml"))
	assert.FileExists(t, filepath.Join(dataDir, "podcast.opml"))

	data, err := os.ReadFile(filepath.Join(dataDir, "tech.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "BV1aaa")
	assert.Contains(t, string(data), "BV1bbb")
}

func TestInitializeIsolatesFailingPod(t *testing.T) {
	dataDir := t.TempDir()
	store := newFakeStore()
	client := &fakeClient{err: assert.AnError}

	rec := newTestReconciler(store, client, &fakeBatch{}, dataDir)
	pod := testPod(t, dataDir)

	// A pod whose remote fetch fails is skipped, not fatal.
	require.NoError(t, rec.Initialize(context.Background(), []*models.Pod{pod}))
	_, err := store.Pod("feed.tech")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpdatePodsDownloadsOnlyDelta(t *testing.T) {
	dataDir := t.TempDir()
	store := newFakeStore()
	batch := &fakeBatch{}
	client := &fakeClient{info: &bili.PodInfo{
		Title:    "Tech Weekly",
		Episodes: []bili.EpisodeInfo{epInfo("BV1aaa", 100), epInfo("BV1bbb", 200)},
	}}

	rec := newTestReconciler(store, client, batch, dataDir)
	pod := testPod(t, dataDir)
	require.NoError(t, rec.Initialize(context.Background(), []*models.Pod{pod}))

	keyA := models.EpisodeKey{Bvid: "BV1aaa", Quality: "low", Format: "audio"}
	epA, err := store.Episode(keyA)
	require.NoError(t, err)
	locationA := epA.Location

	// The remote snapshot rolls from [A, B] to [B, C].
	require.NoError(t, store.UpdatePodSnapshot("feed.tech",
		models.EpisodeList{epInfo("BV1bbb", 200), epInfo("BV1ccc", 300)},
		time.Now().Unix()))
	updated, err := store.Pod("feed.tech")
	require.NoError(t, err)

	rec.updatePods(context.Background(), []*models.Pod{updated})

	// C is fetched and tracked.
	epC, err := store.Episode(models.EpisodeKey{Bvid: "BV1ccc", Quality: "low", Format: "audio"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDownloaded, epC.Status)
	assert.True(t, epC.OnTrack)
	assert.FileExists(t, epC.Location)

	// B survives untouched.
	epB, err := store.Episode(models.EpisodeKey{Bvid: "BV1bbb", Quality: "low", Format: "audio"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDownloaded, epB.Status)
	assert.True(t, epB.OnTrack)
	assert.FileExists(t, epB.Location)

	// A fell out of the snapshot: file gone, record marked deleted.
	epA, err = store.Episode(keyA)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, epA.Status)
	assert.False(t, epA.OnTrack)
	assert.NoFileExists(t, locationA)

	// The regenerated feed no longer references A.
	data, err := os.ReadFile(filepath.Join(dataDir, "tech.xml"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "BV1aaa")
	assert.Contains(t, string(data), "BV1ccc")
}

func TestUpdatePodsNoDelta(t *testing.T) {
	dataDir := t.TempDir()
	store := newFakeStore()
	batch := &fakeBatch{}
	client := &fakeClient{info: &bili.PodInfo{
		Title:    "Tech Weekly",
		Episodes: []bili.EpisodeInfo{epInfo("BV1aaa", 100)},
	}}

	rec := newTestReconciler(store, client, batch, dataDir)
	pod := testPod(t, dataDir)
	require.NoError(t, rec.Initialize(context.Background(), []*models.Pod{pod}))
	require.Equal(t, 1, batch.runs)

	stored, err := store.Pod("feed.tech")
	require.NoError(t, err)
	rec.updatePods(context.Background(), []*models.Pod{stored})

	assert.Equal(t, 1, batch.runs)
}

func TestCleanUntrackedIsIdempotent(t *testing.T) {
	dataDir := t.TempDir()
	store := newFakeStore()
	client := &fakeClient{info: &bili.PodInfo{
		Title:    "Tech Weekly",
		Episodes: []bili.EpisodeInfo{epInfo("BV1aaa", 100), epInfo("BV1bbb", 200)},
	}}

	rec := newTestReconciler(store, client, &fakeBatch{}, dataDir)
	pod := testPod(t, dataDir)
	require.NoError(t, rec.Initialize(context.Background(), []*models.Pod{pod}))

	require.NoError(t, store.UpdatePodSnapshot("feed.tech",
		models.EpisodeList{epInfo("BV1bbb", 200)}, time.Now().Unix()))

	rec.CleanUntracked()
	require.Equal(t, 1, store.deleted)

	// A second sweep finds nothing: deleted episodes stay deleted, nothing is
	// re-deleted.
	rec.CleanUntracked()
	assert.Equal(t, 1, store.deleted)
}

func TestCleanOrphanedMedia(t *testing.T) {
	dataDir := t.TempDir()
	store := newFakeStore()
	client := &fakeClient{info: &bili.PodInfo{
		Title:    "Tech Weekly",
		Episodes: []bili.EpisodeInfo{epInfo("BV1aaa", 100)},
	}}

	rec := newTestReconciler(store, client, &fakeBatch{}, dataDir)
	pod := testPod(t, dataDir)
	require.NoError(t, rec.Initialize(context.Background(), []*models.Pod{pod}))

	stray := filepath.Join(dataDir, "media", "BV9zzz_64K.mp3")
	require.NoError(t, os.WriteFile(stray, []byte("stale"), 0o644))

	rec.CleanOrphanedMedia()

	assert.NoFileExists(t, stray)
	ep, err := store.Episode(models.EpisodeKey{Bvid: "BV1aaa", Quality: "low", Format: "audio"})
	require.NoError(t, err)
	assert.FileExists(t, ep.Location)
}

func TestCleanOrphanedFeeds(t *testing.T) {
	dataDir := t.TempDir()
	store := newFakeStore()
	client := &fakeClient{info: &bili.PodInfo{
		Title:    "Tech Weekly",
		Episodes: []bili.EpisodeInfo{epInfo("BV1aaa", 100)},
	}}

	rec := newTestReconciler(store, client, &fakeBatch{}, dataDir)
	pod := testPod(t, dataDir)
	require.NoError(t, rec.Initialize(context.Background(), []*models.Pod{pod}))

	stray := filepath.Join(dataDir, "gone.xml")
	require.NoError(t, os.WriteFile(stray, []byte("<rss/>"), 0o644))

	rec.CleanOrphanedFeeds()

	assert.NoFileExists(t, stray)
	assert.FileExists(t, filepath.Join(dataDir, "tech.xml"))
}

func TestRefreshPodUpdatesSnapshotAndSignals(t *testing.T) {
	dataDir := t.TempDir()
	store := newFakeStore()
	client := &fakeClient{info: &bili.PodInfo{
		Title:    "Tech Weekly",
		Episodes: []bili.EpisodeInfo{epInfo("BV1aaa", 100)},
	}}

	signal := NewSignal()
	rec := New(store, client, &fakeBatch{}, signal, dataDir, zap.NewNop())
	pod := testPod(t, dataDir)
	require.NoError(t, store.InsertPod(pod))

	client.info = &bili.PodInfo{
		Title:    "Tech Weekly",
		Episodes: []bili.EpisodeInfo{epInfo("BV1aaa", 100), epInfo("BV1bbb", 200)},
	}
	require.NoError(t, rec.RefreshPod(context.Background(), "feed.tech"))

	stored, err := store.Pod("feed.tech")
	require.NoError(t, err)
	require.Len(t, stored.Episodes, 2)
	assert.Equal(t, "BV1bbb", stored.Episodes[1].Bvid)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, signal.Wait(ctx))
}

func TestRefreshPodUnknownFeed(t *testing.T) {
	rec := newTestReconciler(newFakeStore(), &fakeClient{}, &fakeBatch{}, t.TempDir())
	err := rec.RefreshPod(context.Background(), "feed.missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
