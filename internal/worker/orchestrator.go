// Package worker drives episode downloads: a per-episode fetch orchestrator
// and a batch coordinator running chunked concurrent passes.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"bilipod/internal/bili"
	"bilipod/internal/downloader"
	"bilipod/internal/models"
)

// VideoProvider hands out per-video platform objects. Satisfied by
// bili.Client.
type VideoProvider interface {
	Video(bvid string) bili.Video
}

// Transfer produces one media file from a stream set. Satisfied by
// downloader.Downloader.
type Transfer interface {
	Download(ctx context.Context, name string, streams *bili.StreamSet, format, outfile string) error
}

// Orchestrator runs one episode's fetch end to end. Every failure is
// contained here: the caller only learns whether the episode reached the
// downloaded state.
type Orchestrator struct {
	videos VideoProvider
	dl     Transfer
	log    *zap.Logger
}

func NewOrchestrator(videos VideoProvider, dl Transfer, log *zap.Logger) *Orchestrator {
	return &Orchestrator{videos: videos, dl: dl, log: log}
}

// Fetch attempts to bring an episode to the downloaded state. It returns
// false when the episode remains pending, signalling the outer loop to
// retry; it never propagates an error.
func (o *Orchestrator) Fetch(ctx context.Context, ep *models.Episode) bool {
	v := o.videos.Video(ep.Bvid)

	info, err := v.Info(ctx)
	if err != nil {
		o.log.Error("failed to get video info",
			zap.String("bvid", ep.Bvid), zap.Error(err))
		return false
	}

	if ep.Exists() {
		o.log.Debug("episode already exists", zap.String("bvid", ep.Bvid))
	} else {
		streams, err := v.Streams(ctx, ep.VideoQuality, ep.AudioQuality)
		if err != nil {
			o.log.Error("failed to resolve streams",
				zap.String("bvid", ep.Bvid), zap.Error(err))
			return false
		}

		err = o.dl.Download(ctx, ep.Bvid, streams, ep.Format, ep.Location)
		var terr *downloader.TransferError
		if errors.As(err, &terr) {
			o.log.Debug("download attempt failed",
				zap.String("bvid", ep.Bvid), zap.Error(terr))
			return false
		}
		if err != nil {
			o.log.Error("failed to download episode",
				zap.String("bvid", ep.Bvid), zap.Error(err))
			return false
		}

		// Endorsements are best-effort and never affect download status.
		if err := o.endorse(ctx, ep.Endorse, v); err != nil {
			o.log.Error("failed to endorse",
				zap.String("bvid", ep.Bvid), zap.Error(err))
		} else if len(ep.Endorse) > 0 {
			o.log.Debug("endorsed", zap.String("bvid", ep.Bvid))
		}
	}

	ep.Status = models.StatusDownloaded
	if err := ep.SetSize(); err != nil {
		o.log.Error("failed to stat downloaded file",
			zap.String("location", ep.Location), zap.Error(err))
	}
	ep.ExpandDescription(info.Dynamic)
	o.log.Debug("downloaded episode",
		zap.String("bvid", ep.Bvid), zap.Int64("size", ep.Size))
	return true
}
