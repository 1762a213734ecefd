package feed

import (
	"time"
)

// Feed processing types

// Item is a normalized feed entry as extracted from a hub notification.
type Item struct {
	ID          string // Stable identifier: guid, link, or title+date hash
	Title       string
	Link        string
	Summary     string // Plain text, HTML stripped
	ImageURL    string
	PublishedAt *time.Time
}

// Configuration types

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"` // Topic feed URL
	Settings ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Enabled      bool   `yaml:"enabled"`
	LeaseSeconds int    `yaml:"lease_seconds"`
	Secret       string `yaml:"secret"` // Shared secret for hub signature verification
}
