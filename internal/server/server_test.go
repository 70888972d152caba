package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bilipod/internal/config"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "media"), 0o755))

	s := New(config.Server{Hostname: "https://pods.example.com"}, dataDir, zap.NewNop())
	ts := httptest.NewServer(s.http.Handler)
	t.Cleanup(ts.Close)
	return ts, dataDir
}

func TestIndex(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bilipod")
	assert.Contains(t, string(body), "https://pods.example.com")
}

func TestServeFeed(t *testing.T) {
	ts, dataDir := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "tech.xml"),
		[]byte(`<?xml version="1.0"?><rss/>`), 0o644))

	resp, err := http.Get(ts.URL + "/tech.xml")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/rss+xml; charset=utf-8", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<rss/>")
}

func TestServeFeedNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/missing.xml")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeOPML(t *testing.T) {
	ts, dataDir := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "podcast.opml"),
		[]byte(`<opml version="1.0"></opml>`), 0o644))

	resp, err := http.Get(ts.URL + "/podcast.opml")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/xml; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestServeMediaSupportsRanges(t *testing.T) {
	ts, dataDir := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "media", "BV1aaa_64K.mp3"),
		[]byte("0123456789"), 0o644))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/media/BV1aaa_64K.mp3", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=2-5")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(body))
}

func TestServeMediaRejectsTraversal(t *testing.T) {
	ts, dataDir := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "secret.txt"),
		[]byte("keep out"), 0o644))

	resp, err := http.Get(ts.URL + "/media/..%2Fsecret.txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}
