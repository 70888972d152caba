package db

import (
	"bilipod/internal/models"
)

const podColumns = `feed_id, uid, sid, title, description, cover_art, author, link,
	category, subcategories, explicit, lang, page_size, update_period, format,
	playlist_sort, quality, opml, keep_last, private_feed, endorse, keyword,
	episodes, xml_url, data_dir, base_url, update_at`

// InsertPod saves a pod record. An existing record with the same feed id is
// replaced.
func (s *Store) InsertPod(pod *models.Pod) error {
	_, err := s.db.NamedExec(`
		INSERT OR REPLACE INTO pods (`+podColumns+`)
		VALUES (:feed_id, :uid, :sid, :title, :description, :cover_art, :author, :link,
			:category, :subcategories, :explicit, :lang, :page_size, :update_period, :format,
			:playlist_sort, :quality, :opml, :keep_last, :private_feed, :endorse, :keyword,
			:episodes, :xml_url, :data_dir, :base_url, :update_at)`,
		pod)
	return err
}

// Pod looks a pod up by feed id.
func (s *Store) Pod(feedID string) (*models.Pod, error) {
	pod := models.Pod{}
	err := s.db.Get(&pod, "SELECT * FROM pods WHERE feed_id = ?", feedID)
	if err != nil {
		return nil, err
	}
	return &pod, nil
}

// Pods returns every pod record.
func (s *Store) Pods() ([]*models.Pod, error) {
	var pods []*models.Pod
	err := s.db.Select(&pods, "SELECT * FROM pods ORDER BY feed_id")
	return pods, err
}

// PodsUpdatedSince returns the pods whose last refresh happened at or after
// the given unix timestamp.
func (s *Store) PodsUpdatedSince(ts int64) ([]*models.Pod, error) {
	var pods []*models.Pod
	err := s.db.Select(&pods, "SELECT * FROM pods WHERE update_at >= ? ORDER BY feed_id", ts)
	return pods, err
}

// UpdatePodSnapshot overwrites a pod's episode snapshot and refresh
// timestamp, keyed by feed id.
func (s *Store) UpdatePodSnapshot(feedID string, episodes models.EpisodeList, updateAt int64) error {
	snapshot, err := episodes.Value()
	if err != nil {
		return err
	}
	_, err = s.db.Exec("UPDATE pods SET episodes = ?, update_at = ? WHERE feed_id = ?",
		snapshot, updateAt, feedID)
	return err
}

// KnownFeed reports whether a feed document stem belongs to a configured
// pod, with or without the reserved "feed." prefix.
func (s *Store) KnownFeed(stem string) (bool, error) {
	var count int
	err := s.db.Get(&count, "SELECT COUNT(*) FROM pods WHERE feed_id IN (?, ?)",
		stem, "feed."+stem)
	return count > 0, err
}
