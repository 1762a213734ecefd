package api

import (
	"time"

	"github.com/mkoval/feedrelay/app/database"
	"github.com/mkoval/feedrelay/app/feed"
	"github.com/mkoval/feedrelay/app/publish"
	"github.com/mkoval/feedrelay/app/rephrase"
	"github.com/mkoval/feedrelay/app/tasks"
	"golang.org/x/time/rate"
)

type ParserInterface interface {
	Run(data []byte) ([]feed.Item, error)
}

var _ ParserInterface = (*feed.Parser)(nil)

type Handler struct {
	configCache *feed.ConfigCache
	parser      ParserInterface
	dedupStore  database.DedupStore
	scheduler   tasks.TaskSchedulerInterface
	rephraser   tasks.RephraserInterface
	keyPool     *rephrase.KeyPool
	fanout      *publish.Fanout
	limiter     *rate.Limiter
	claimTTL    time.Duration
	dedupTTL    time.Duration
}
