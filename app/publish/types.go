package publish

import (
	"context"

	"github.com/mkoval/feedrelay/app/feed"
	"github.com/mkoval/feedrelay/app/rephrase"
)

type Platform string

const (
	PlatformFacebook Platform = "facebook"
	PlatformTwitter  Platform = "twitter"
)

// Destination is one configured publish target. The destination list is
// read-only configuration assembled at process start.
type Destination struct {
	Platform   Platform
	AccountRef string // Page ID or masked token reference
	Enabled    bool
}

// Result is the outcome of one publish attempt for one destination.
type Result struct {
	Destination Destination
	Success     bool
	Err         error
}

// PlatformClient posts rewritten content to a single destination account.
type PlatformClient interface {
	Destination() Destination
	Post(ctx context.Context, content rephrase.RephrasedContent, item feed.Item) error
}
