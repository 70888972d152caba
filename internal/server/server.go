// Package server exposes the feed documents, the OPML listing and the
// downloaded media files over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"bilipod/internal/config"
	"bilipod/internal/feed"
)

type Server struct {
	cfg     config.Server
	dataDir string
	log     *zap.Logger
	http    *http.Server
}

func New(cfg config.Server, dataDir string, log *zap.Logger) *Server {
	s := &Server{cfg: cfg, dataDir: dataDir, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/", s.index).Methods(http.MethodGet)
	r.HandleFunc("/"+feed.OPMLFile, s.serveOPML).Methods(http.MethodGet)
	r.HandleFunc("/{feed}.xml", s.serveFeed).Methods(http.MethodGet)
	r.HandleFunc("/media/{file}", s.serveMedia).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler: r,
	}
	return s
}

// Run serves until Shutdown is called. It returns http.ErrServerClosed on a
// clean shutdown.
func (s *Server) Run() error {
	s.log.Info("web server running", zap.String("base_url", s.cfg.BaseURL()))
	if s.cfg.TLS {
		return s.http.ListenAndServeTLS(s.cfg.CertificatePath, s.cfg.KeyFilePath)
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><h1>bilipod</h1><p>Feeds are served under %s</p></body></html>\n",
		s.cfg.BaseURL())
}

func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["feed"]
	path := filepath.Join(s.dataDir, name+".xml")
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	http.ServeFile(w, r, path)
}

func (s *Server) serveOPML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	http.ServeFile(w, r, filepath.Join(s.dataDir, feed.OPMLFile))
}

// serveMedia serves the downloaded files; http.ServeFile handles byte
// ranges for podcast clients that seek.
func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["file"]
	http.ServeFile(w, r, filepath.Join(s.dataDir, "media", name))
}
