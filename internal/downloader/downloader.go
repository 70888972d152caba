// Package downloader fetches remote media streams and remuxes them into a
// single output file with ffmpeg.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bilipod/internal/bili"
)

// execCommand is swappable in tests.
var execCommand = exec.CommandContext

// Downloader streams source URLs to a scoped temp directory, verifies them
// against the declared Content-Length and produces exactly one file at the
// target path, or fails.
type Downloader struct {
	http   *http.Client
	log    *zap.Logger
	ffmpeg string
}

func New(log *zap.Logger) *Downloader {
	return &Downloader{
		http:   &http.Client{Timeout: 15 * time.Minute},
		log:    log,
		ffmpeg: "ffmpeg",
	}
}

// Download fetches the stream set and writes the output file. The stream
// layout decides the remux invocation. All temporary artifacts live in a
// directory removed on every exit path.
func (d *Downloader) Download(ctx context.Context, name string, streams *bili.StreamSet, format, outfile string) error {
	tmp, err := os.MkdirTemp("", "bilipod-"+name+"-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	switch streams.Layout {
	case bili.LayoutFLV:
		return d.downloadFLV(ctx, tmp, name, streams, format, outfile)
	case bili.LayoutMP4:
		return d.downloadMP4(ctx, tmp, name, streams, format, outfile)
	case bili.LayoutDASH:
		return d.downloadDASH(ctx, tmp, name, streams, format, outfile)
	default:
		return fmt.Errorf("unknown stream layout %d", streams.Layout)
	}
}

// downloadFLV handles the legacy combined container: one fetch, then a
// demux/remux into the target container.
func (d *Downloader) downloadFLV(ctx context.Context, tmp, name string, streams *bili.StreamSet, format, outfile string) error {
	temp := filepath.Join(tmp, name+"_flv_temp.flv")
	if err := d.fetch(ctx, streams.Video, temp, name+" FLV stream"); err != nil {
		return err
	}
	if format == "video" {
		return d.runFFmpeg(ctx, "-y", "-i", temp, "-vcodec", "copy", "-acodec", "copy", outfile)
	}
	return d.runFFmpeg(ctx, "-y", "-i", temp, "-vn", "-acodec", "libmp3lame", "-q:a", "2", outfile)
}

// downloadMP4 handles the modern combined container: a plain file copy for
// video, an audio extraction otherwise.
func (d *Downloader) downloadMP4(ctx context.Context, tmp, name string, streams *bili.StreamSet, format, outfile string) error {
	temp := filepath.Join(tmp, name+"_mp4_temp.mp4")
	if err := d.fetch(ctx, streams.Video, temp, name+" MP4 stream"); err != nil {
		return err
	}
	if format == "video" {
		return copyFile(temp, outfile)
	}
	return d.runFFmpeg(ctx, "-y", "-i", temp, "-vn", "-acodec", "libmp3lame", "-q:a", "2", outfile)
}

// downloadDASH handles split elementary streams. For video the two fetches
// run concurrently and both must finish before the mux step; a failure in
// either aborts without muxing.
func (d *Downloader) downloadDASH(ctx context.Context, tmp, name string, streams *bili.StreamSet, format, outfile string) error {
	tempAudio := filepath.Join(tmp, name+"_audio_temp.m4s")

	if format == "video" {
		tempVideo := filepath.Join(tmp, name+"_video_temp.m4s")
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return d.fetch(gctx, streams.Video, tempVideo, name+" video stream")
		})
		g.Go(func() error {
			return d.fetch(gctx, streams.Audio, tempAudio, name+" audio stream")
		})
		if err := g.Wait(); err != nil {
			return err
		}
		return d.runFFmpeg(ctx, "-y", "-i", tempVideo, "-i", tempAudio,
			"-vcodec", "copy", "-acodec", "copy", outfile)
	}

	if err := d.fetch(ctx, streams.Audio, tempAudio, name+" audio stream"); err != nil {
		return err
	}
	return d.runFFmpeg(ctx, "-y", "-i", tempAudio, "-vn", "-acodec", "libmp3lame", outfile)
}

// fetch streams one URL to a file, reporting progress at ~10% increments.
// Bytes written must equal the declared Content-Length; any shortfall is a
// transfer failure, not a silent partial file.
func (d *Downloader) fetch(ctx context.Context, url, dest, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &TransferError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", bili.UserAgent)
	req.Header.Set("Referer", bili.Referer)

	resp, err := d.http.Do(req)
	if err != nil {
		return &TransferError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransferError{URL: url, Err: errors.New(resp.Status)}
	}
	length := resp.ContentLength

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	var written, nextReport int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("write %s: %w", dest, err)
			}
			written += int64(n)
			if length > 0 && (written >= nextReport || written == length) {
				d.log.Debug("downloading",
					zap.String("stream", name),
					zap.Int64("percent", written*100/length))
				nextReport += length / 10
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &TransferError{URL: url, Received: written, Expected: length, Err: readErr}
		}
	}

	if written != length {
		return &TransferError{URL: url, Received: written, Expected: length,
			Err: errors.New("incomplete download")}
	}
	return nil
}

func (d *Downloader) runFFmpeg(ctx context.Context, args ...string) error {
	cmd := execCommand(ctx, d.ffmpeg, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &ProcessError{Output: string(out), Err: err}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
