// Package reconciler keeps the pod catalog, the episode catalog, the on-disk
// media and the generated feed documents mutually consistent.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bilipod/internal/bili"
	"bilipod/internal/feed"
	"bilipod/internal/models"
)

// DefaultDebounce is the window used to coalesce near-simultaneous pod
// refreshes into one update batch.
const DefaultDebounce = 5 * time.Minute

// Store is the slice of the persisted catalog the reconciler depends on.
// Satisfied by db.Store.
type Store interface {
	InsertPod(pod *models.Pod) error
	Pod(feedID string) (*models.Pod, error)
	Pods() ([]*models.Pod, error)
	PodsUpdatedSince(ts int64) ([]*models.Pod, error)
	UpdatePodSnapshot(feedID string, episodes models.EpisodeList, updateAt int64) error
	KnownFeed(stem string) (bool, error)

	InsertEpisodes(episodes []*models.Episode) error
	Episode(key models.EpisodeKey) (*models.Episode, error)
	HasEpisode(key models.EpisodeKey) (bool, error)
	HasEpisodeAt(location string) (bool, error)
	MarkAllUntracked() error
	MarkOnTrack(key models.EpisodeKey) error
	UntrackedEpisodes() ([]*models.Episode, error)
	MarkDeleted(key models.EpisodeKey) error
}

// Batch downloads a set of episodes and returns the ones still pending.
// Satisfied by worker.Coordinator.
type Batch interface {
	Run(ctx context.Context, episodes []*models.Episode) []*models.Episode
}

// Reconciler owns the diff-download-regenerate-cleanup cycle.
type Reconciler struct {
	store    Store
	client   bili.Client
	batch    Batch
	signal   *Signal
	log      *zap.Logger
	dataDir  string
	debounce time.Duration
}

func New(store Store, client bili.Client, batch Batch, signal *Signal, dataDir string, log *zap.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		client:   client,
		batch:    batch,
		signal:   signal,
		log:      log,
		dataDir:  dataDir,
		debounce: DefaultDebounce,
	}
}

func (r *Reconciler) podInfo(ctx context.Context, pod *models.Pod) (*bili.PodInfo, error) {
	if pod.UID != 0 {
		return r.client.UserInfo(ctx, pod.UID, pod.PageSize, pod.Keyword)
	}
	return r.client.CollectionInfo(ctx, pod.SID, pod.PageSize)
}

// Initialize persists every configured pod with fresh remote metadata,
// downloads all reachable episodes, writes every feed document plus the OPML
// listing, and runs a full cleanup pass.
func (r *Reconciler) Initialize(ctx context.Context, pods []*models.Pod) error {
	for _, pod := range pods {
		r.log.Info("initializing feed", zap.String("feed", pod.FeedID))

		info, err := r.podInfo(ctx, pod)
		if err != nil {
			r.log.Error("failed to fetch pod info",
				zap.String("feed", pod.FeedID), zap.Error(err))
			continue
		}
		pod.ApplyInfo(info)
		pod.UpdateAt = time.Now().Unix()

		if err := r.store.InsertPod(pod); err != nil {
			return err
		}
	}

	stored, err := r.store.Pods()
	if err != nil {
		return err
	}

	var episodes []*models.Episode
	seen := make(map[models.EpisodeKey]bool)
	for _, pod := range stored {
		expanded, err := pod.Expand()
		if err != nil {
			r.log.Error("failed to expand pod",
				zap.String("feed", pod.FeedID), zap.Error(err))
			continue
		}
		for _, ep := range expanded {
			if seen[ep.Key()] {
				continue
			}
			seen[ep.Key()] = true
			episodes = append(episodes, ep)
		}
	}

	r.log.Info("initializing download", zap.Int("episodes", len(episodes)))
	r.batch.Run(ctx, episodes)

	if err := r.store.InsertEpisodes(episodes); err != nil {
		return err
	}

	for _, pod := range stored {
		if err := feed.Generate(pod, r.store, r.log); err != nil {
			r.log.Error("failed to generate feed",
				zap.String("feed", pod.FeedID), zap.Error(err))
		}
	}
	if err := feed.GenerateOPML(stored, r.dataDir); err != nil {
		r.log.Error("failed to generate opml", zap.Error(err))
	}

	r.CleanOrphanedFeeds()
	r.CleanOrphanedMedia()
	r.CleanUntracked()
	return nil
}

// UpdateLoop waits on the update signal, debounces it to coalesce bursts of
// pod refreshes, then downloads the episode delta and regenerates the
// affected feeds. Runs until the context is cancelled.
func (r *Reconciler) UpdateLoop(ctx context.Context) {
	for {
		r.log.Debug("waiting for update signal")
		if err := r.signal.Wait(ctx); err != nil {
			return
		}
		r.log.Debug("update signal received")

		select {
		case <-time.After(r.debounce):
		case <-ctx.Done():
			return
		}
		r.signal.Clear()

		since := time.Now().Add(-r.debounce).Unix()
		pods, err := r.store.PodsUpdatedSince(since)
		if err != nil {
			r.log.Error("failed to load updated pods", zap.Error(err))
			continue
		}

		r.updatePods(ctx, pods)
	}
}

// updatePods downloads the episodes in the given pods' snapshots that are
// not yet in the catalog, then regenerates each affected feed.
func (r *Reconciler) updatePods(ctx context.Context, pods []*models.Pod) {
	var delta []*models.Episode
	seen := make(map[models.EpisodeKey]bool)
	for _, pod := range pods {
		expanded, err := pod.Expand()
		if err != nil {
			r.log.Error("failed to expand pod",
				zap.String("feed", pod.FeedID), zap.Error(err))
			continue
		}
		for _, ep := range expanded {
			if seen[ep.Key()] {
				continue
			}
			known, err := r.store.HasEpisode(ep.Key())
			if err != nil {
				r.log.Error("failed to query episode",
					zap.String("bvid", ep.Bvid), zap.Error(err))
				continue
			}
			if known {
				continue
			}
			seen[ep.Key()] = true
			delta = append(delta, ep)
		}
	}

	if len(delta) == 0 {
		r.log.Info("no episodes to update")
		return
	}

	r.log.Debug("downloading episode delta", zap.Int("episodes", len(delta)))
	r.batch.Run(ctx, delta)

	if err := r.store.InsertEpisodes(delta); err != nil {
		r.log.Error("failed to insert episodes", zap.Error(err))
		return
	}

	for _, pod := range pods {
		if err := feed.Generate(pod, r.store, r.log); err != nil {
			r.log.Error("failed to generate feed",
				zap.String("feed", pod.FeedID), zap.Error(err))
			continue
		}
		r.log.Info("feed updated", zap.String("feed", pod.FeedID))
	}

	r.CleanUntracked()
}

// RefreshPod re-fetches one pod's remote metadata and episode list,
// overwrites its snapshot, and raises the update signal. Invoked by the
// scheduler on the pod's own update period.
func (r *Reconciler) RefreshPod(ctx context.Context, feedID string) error {
	pod, err := r.store.Pod(feedID)
	if err != nil {
		return err
	}

	info, err := r.podInfo(ctx, pod)
	if err != nil {
		return err
	}

	if err := r.store.UpdatePodSnapshot(feedID, info.Episodes, time.Now().Unix()); err != nil {
		return err
	}
	r.signal.Set()

	r.log.Info("pod updated", zap.String("feed", feedID))
	return nil
}
