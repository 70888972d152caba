package reconciler

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// CleanOrphanedMedia deletes on-disk media files no persisted episode
// references. Safe to run at any time.
func (r *Reconciler) CleanOrphanedMedia() {
	mediaDir := filepath.Join(r.dataDir, "media")
	entries, err := os.ReadDir(mediaDir)
	if err != nil {
		r.log.Error("failed to read media dir", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		location := filepath.Join(mediaDir, entry.Name())
		known, err := r.store.HasEpisodeAt(location)
		if err != nil {
			r.log.Error("failed to query location",
				zap.String("location", location), zap.Error(err))
			continue
		}
		if known {
			continue
		}
		if err := os.Remove(location); err != nil {
			r.log.Error("failed to delete orphaned media",
				zap.String("location", location), zap.Error(err))
			continue
		}
		r.log.Debug("deleted orphaned media", zap.String("location", location))
	}
}

// CleanUntracked reconciles the on_track flags with the current pod
// snapshots: every episode no snapshot reaches has its file removed and its
// status forced to deleted. A missing file is logged, not fatal; the record
// is marked deleted either way.
func (r *Reconciler) CleanUntracked() {
	if err := r.store.MarkAllUntracked(); err != nil {
		r.log.Error("failed to reset tracking flags", zap.Error(err))
		return
	}

	pods, err := r.store.Pods()
	if err != nil {
		r.log.Error("failed to load pods", zap.Error(err))
		return
	}
	for _, pod := range pods {
		expanded, err := pod.Expand()
		if err != nil {
			r.log.Error("failed to expand pod",
				zap.String("feed", pod.FeedID), zap.Error(err))
			continue
		}
		for _, ep := range expanded {
			if err := r.store.MarkOnTrack(ep.Key()); err != nil {
				r.log.Error("failed to mark episode on track",
					zap.String("bvid", ep.Bvid), zap.Error(err))
			}
		}
	}

	untracked, err := r.store.UntrackedEpisodes()
	if err != nil {
		r.log.Error("failed to load untracked episodes", zap.Error(err))
		return
	}
	for _, ep := range untracked {
		if err := ep.Clean(); err != nil {
			r.log.Error("failed to delete episode file",
				zap.String("location", ep.Location), zap.Error(err))
		}
		if err := r.store.MarkDeleted(ep.Key()); err != nil {
			r.log.Error("failed to mark episode deleted",
				zap.String("bvid", ep.Bvid), zap.Error(err))
		}
	}
	r.log.Debug("cleaned untracked episodes", zap.Int("episodes", len(untracked)))
}

// CleanOrphanedFeeds deletes feed documents whose stem matches no known feed
// id, with or without the reserved prefix.
func (r *Reconciler) CleanOrphanedFeeds() {
	matches, err := filepath.Glob(filepath.Join(r.dataDir, "*.xml"))
	if err != nil {
		r.log.Error("failed to list feed documents", zap.Error(err))
		return
	}

	for _, path := range matches {
		stem := strings.TrimSuffix(filepath.Base(path), ".xml")
		known, err := r.store.KnownFeed(stem)
		if err != nil {
			r.log.Error("failed to query feed",
				zap.String("feed", stem), zap.Error(err))
			continue
		}
		if known {
			continue
		}
		if err := os.Remove(path); err != nil {
			r.log.Error("failed to delete orphaned feed document",
				zap.String("path", path), zap.Error(err))
			continue
		}
		r.log.Debug("deleted orphaned feed document", zap.String("feed", stem))
	}
}
