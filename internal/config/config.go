// Package config loads and validates the YAML configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"bilipod/internal/scheduler"
)

// Config holds all configuration for the service.
type Config struct {
	Server  Server          `mapstructure:"server"`
	Storage Storage         `mapstructure:"storage"`
	Token   Token           `mapstructure:"token"`
	Feeds   map[string]Feed `mapstructure:"feeds"`
	Log     Log             `mapstructure:"log"`
}

// Server contains the HTTP surface settings.
type Server struct {
	Port            int    `mapstructure:"port"`
	Hostname        string `mapstructure:"hostname"`
	BindAddress     string `mapstructure:"bind_address"`
	Path            string `mapstructure:"path"`
	TLS             bool   `mapstructure:"tls"`
	CertificatePath string `mapstructure:"certificate_path"`
	KeyFilePath     string `mapstructure:"key_file_path"`
}

// BaseURL is the public prefix under which feeds and media are served.
func (s Server) BaseURL() string {
	if s.Hostname != "" {
		if s.Path != "" {
			return s.Hostname + "/" + strings.Trim(s.Path, "/")
		}
		return s.Hostname
	}
	scheme := "http"
	if s.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.BindAddress, s.Port)
}

// Storage locates the data directory holding media files, feed documents
// and the catalog database.
type Storage struct {
	DataDir string `mapstructure:"data_dir"`
}

// Token carries the session cookies, either inline or via a Netscape cookie
// file whose values fill any fields left empty.
type Token struct {
	BiliJct        string `mapstructure:"bili_jct"`
	Buvid3         string `mapstructure:"buvid3"`
	Buvid4         string `mapstructure:"buvid4"`
	DedeUserID     string `mapstructure:"dedeuserid"`
	SessData       string `mapstructure:"sessdata"`
	AcTimeValue    string `mapstructure:"ac_time_value"`
	CookieFilePath string `mapstructure:"cookie_file_path"`
}

// Feed is one subscription entry. Exactly one of UID and SID must be set.
type Feed struct {
	UID           int64    `mapstructure:"uid"`
	SID           int64    `mapstructure:"sid"`
	PageSize      int      `mapstructure:"page_size"`
	UpdatePeriod  string   `mapstructure:"update_period"`
	Format        string   `mapstructure:"format"`
	PlaylistSort  string   `mapstructure:"playlist_sort"`
	Quality       string   `mapstructure:"quality"`
	OPML          bool     `mapstructure:"opml"`
	KeepLast      int      `mapstructure:"keep_last"`
	PrivateFeed   bool     `mapstructure:"private_feed"`
	Endorse       []string `mapstructure:"endorse"`
	Keyword       string   `mapstructure:"keyword"`
	Title         string   `mapstructure:"title"`
	Description   string   `mapstructure:"description"`
	Author        string   `mapstructure:"author"`
	CoverArt      string   `mapstructure:"cover_art"`
	Category      string   `mapstructure:"category"`
	Subcategories []string `mapstructure:"subcategories"`
	Explicit      bool     `mapstructure:"explicit"`
	Lang          string   `mapstructure:"lang"`
	Link          string   `mapstructure:"link"`

	// Interval is UpdatePeriod parsed at load time; the scheduler never
	// re-parses the string.
	Interval scheduler.Interval `mapstructure:"-"`
}

// Log contains logging settings.
type Log struct {
	File  string `mapstructure:"filename"`
	Debug bool   `mapstructure:"debug"`
}

// Load reads and validates the configuration file. Any failure here is a
// fatal startup error.
func Load(path string) (*Config, error) {
	// Feed ids contain dots; the key delimiter must not collide with them or
	// viper splits "feed.tech" into nested keys.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("BILIPOD")
	v.SetEnvKeyReplacer(strings.NewReplacer("::", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Token.CookieFilePath != "" {
		if err := cfg.Token.fillFromCookieFile(); err != nil {
			return nil, fmt.Errorf("failed to read cookie file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server::port", 8080)
	v.SetDefault("server::bind_address", "localhost")
	v.SetDefault("server::tls", false)
	v.SetDefault("storage::data_dir", "data")
	v.SetDefault("log::debug", false)
}

func (c *Config) validate() error {
	if len(c.Feeds) == 0 {
		return fmt.Errorf("no feeds configured")
	}
	for feedID := range c.Feeds {
		f := c.Feeds[feedID]
		applyFeedDefaults(&f)

		if (f.UID == 0) == (f.SID == 0) {
			return fmt.Errorf("feed %s: exactly one of uid and sid must be set", feedID)
		}
		switch f.Format {
		case "audio", "video":
		default:
			return fmt.Errorf("feed %s: unknown format %q", feedID, f.Format)
		}
		switch f.Quality {
		case "low", "medium", "high":
		default:
			return fmt.Errorf("feed %s: unknown quality %q", feedID, f.Quality)
		}

		interval, err := scheduler.ParseInterval(f.UpdatePeriod)
		if err != nil {
			return fmt.Errorf("feed %s: %w", feedID, err)
		}
		f.Interval = interval
		c.Feeds[feedID] = f
	}
	return nil
}

func applyFeedDefaults(f *Feed) {
	if f.PageSize == 0 {
		f.PageSize = 10
	}
	if f.UpdatePeriod == "" {
		f.UpdatePeriod = "12h"
	}
	if f.Format == "" {
		f.Format = "audio"
	}
	if f.PlaylistSort == "" {
		f.PlaylistSort = "desc"
	}
	if f.Quality == "" {
		f.Quality = "low"
	}
	if f.KeepLast == 0 {
		f.KeepLast = 10
	}
}
