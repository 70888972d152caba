package db

import (
	"database/sql"
	"errors"

	"bilipod/internal/models"
)

const episodeColumns = `bvid, quality, format, title, description, image, duration,
	pubdate, explicit, link, mime_type, video_quality, audio_quality, location, url,
	size, status, on_track, endorse`

// InsertEpisodes bulk-inserts episode records. Existing records with the
// same identity are left untouched.
func (s *Store) InsertEpisodes(episodes []*models.Episode) error {
	if len(episodes) == 0 {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	for _, ep := range episodes {
		_, err := tx.NamedExec(`
			INSERT OR IGNORE INTO episodes (`+episodeColumns+`)
			VALUES (:bvid, :quality, :format, :title, :description, :image, :duration,
				:pubdate, :explicit, :link, :mime_type, :video_quality, :audio_quality,
				:location, :url, :size, :status, :on_track, :endorse)`,
			ep)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Episode looks up an episode by its identity triple.
func (s *Store) Episode(key models.EpisodeKey) (*models.Episode, error) {
	ep := models.Episode{}
	err := s.db.Get(&ep, "SELECT * FROM episodes WHERE bvid = ? AND quality = ? AND format = ?",
		key.Bvid, key.Quality, key.Format)
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// HasEpisode reports whether an episode with the given identity is
// persisted.
func (s *Store) HasEpisode(key models.EpisodeKey) (bool, error) {
	_, err := s.Episode(key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HasEpisodeAt reports whether any episode record references the given
// on-disk location.
func (s *Store) HasEpisodeAt(location string) (bool, error) {
	var count int
	err := s.db.Get(&count, "SELECT COUNT(*) FROM episodes WHERE location = ?", location)
	return count > 0, err
}

// UpdateEpisode persists the mutable fields set by the download pipeline.
func (s *Store) UpdateEpisode(ep *models.Episode) error {
	_, err := s.db.Exec(`
		UPDATE episodes SET title = ?, description = ?, size = ?, status = ?, on_track = ?
		WHERE bvid = ? AND quality = ? AND format = ?`,
		ep.Title, ep.Description, ep.Size, ep.Status, ep.OnTrack,
		ep.Bvid, ep.Quality, ep.Format)
	return err
}

// MarkAllUntracked clears the on_track flag on every episode. The cleanup
// pass re-marks the ones still reachable from a pod snapshot.
func (s *Store) MarkAllUntracked() error {
	_, err := s.db.Exec("UPDATE episodes SET on_track = 0")
	return err
}

// MarkOnTrack flags one episode identity as reachable.
func (s *Store) MarkOnTrack(key models.EpisodeKey) error {
	_, err := s.db.Exec("UPDATE episodes SET on_track = 1 WHERE bvid = ? AND quality = ? AND format = ?",
		key.Bvid, key.Quality, key.Format)
	return err
}

// UntrackedEpisodes returns every episode no pod snapshot references,
// excluding ones already marked deleted.
func (s *Store) UntrackedEpisodes() ([]*models.Episode, error) {
	var episodes []*models.Episode
	err := s.db.Select(&episodes,
		"SELECT * FROM episodes WHERE on_track = 0 AND status != ?", models.StatusDeleted)
	return episodes, err
}

// MarkDeleted sets an episode's status to deleted.
func (s *Store) MarkDeleted(key models.EpisodeKey) error {
	_, err := s.db.Exec("UPDATE episodes SET status = ? WHERE bvid = ? AND quality = ? AND format = ?",
		models.StatusDeleted, key.Bvid, key.Quality, key.Format)
	return err
}
