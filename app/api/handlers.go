package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/mkoval/feedrelay/app/cfg"
	"github.com/mkoval/feedrelay/app/database"
	"github.com/mkoval/feedrelay/app/feed"
	"github.com/mkoval/feedrelay/app/publish"
	"github.com/mkoval/feedrelay/app/rephrase"
	"github.com/mkoval/feedrelay/app/tasks"
	"github.com/mkoval/feedrelay/app/websub"
)

// maxPayloadSize caps webhook bodies. Hubs push single feed documents,
// anything larger is not a feed we want to parse.
const maxPayloadSize = 2 << 20

func NewHandler(configCache *feed.ConfigCache, parser ParserInterface,
	dedupStore database.DedupStore, scheduler tasks.TaskSchedulerInterface,
	rephraser tasks.RephraserInterface, keyPool *rephrase.KeyPool,
	fanout *publish.Fanout, limiter *rate.Limiter,
	claimTTL, dedupTTL time.Duration) *Handler {
	return &Handler{
		configCache: configCache,
		parser:      parser,
		dedupStore:  dedupStore,
		scheduler:   scheduler,
		rephraser:   rephraser,
		keyPool:     keyPool,
		fanout:      fanout,
		limiter:     limiter,
		claimTTL:    claimTTL,
		dedupTTL:    dedupTTL,
	}
}

// VerifyIntent answers hub challenge requests. The challenge is echoed
// byte for byte only for topics present in the loaded configuration.
func (h *Handler) VerifyIntent(c *gin.Context) {
	mode := c.Query("hub.mode")
	topic := c.Query("hub.topic")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" && mode != "unsubscribe" {
		slog.Warn("Rejected hub verification", "reason", "unsupported mode", "mode", mode)
		c.Status(http.StatusBadRequest)
		return
	}

	if challenge == "" {
		slog.Warn("Rejected hub verification", "reason", "missing challenge", "topic", topic)
		c.Status(http.StatusBadRequest)
		return
	}

	if h.configCache.FindByTopic(topic) == nil {
		slog.Warn("Rejected hub verification", "reason", "unknown topic", "topic", topic)
		c.Status(http.StatusNotFound)
		return
	}

	slog.Info("Hub verification accepted", "mode", mode, "topic", topic)

	c.String(http.StatusOK, challenge)
}

// HandleNotification accepts content pushes from the hub, claims each
// new item in the dedup store and enqueues a publish task per winner.
func (h *Handler) HandleNotification(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadSize+1))
	if err != nil {
		slog.Error("Failed to read notification body", "error", err)
		c.Status(http.StatusBadRequest)
		return
	}

	if len(payload) > maxPayloadSize {
		slog.Warn("Rejected notification", "reason", "payload too large")
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}

	if !h.verifySignature(payload, c.GetHeader("X-Hub-Signature")) {
		slog.Warn("Rejected notification", "reason", "signature verification failed")
		c.Status(http.StatusUnauthorized)
		return
	}

	items, err := h.parser.Run(payload)
	if err != nil {
		slog.Error("Failed to parse notification payload", "error", err)
		c.Status(http.StatusBadRequest)
		return
	}

	enqueued := 0
	for _, item := range items {
		claimed, err := h.dedupStore.Claim(item.ID, h.claimTTL)
		if err != nil {
			slog.Error("Dedup claim failed", "item_id", item.ID, "error", err)
			continue
		}

		if !claimed {
			slog.Debug("Skipping already seen item", "item_id", item.ID)
			continue
		}

		task := tasks.NewPublishItemTask(item, h.rephraser, h.fanout, h.dedupStore, h.limiter, h.dedupTTL)
		h.scheduler.EnqueueTask(task)
		enqueued++
	}

	slog.Info("Notification processed", "items", len(items), "enqueued", enqueued)

	c.Status(http.StatusOK)
}

// verifySignature checks the hub signature against every configured
// topic secret. Payloads pass unchecked only when no secrets are
// configured at all.
func (h *Handler) verifySignature(payload []byte, header string) bool {
	secrets := h.configCache.Secrets()
	if len(secrets) == 0 {
		return true
	}

	for _, secret := range secrets {
		if websub.VerifySignature(payload, header, secret) {
			return true
		}
	}

	return false
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if seenCount, err := h.dedupStore.Count(); err == nil {
		health["seen_items"] = seenCount
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"version":               cfg.GetVersion(),
		"timestamp":             time.Now().In(time.Local).Format(time.RFC3339),
		"loaded_configurations": h.configCache.GetConfigCount(),
		"destinations":          h.fanout.DestinationCount(),
	}

	if seenCount, err := h.dedupStore.Count(); err == nil {
		stats["seen_items"] = seenCount
	}

	keyStates := make(map[string]int)
	for state, count := range h.keyPool.States() {
		keyStates[string(state)] = count
	}
	stats["llm_keys"] = keyStates

	c.JSON(http.StatusOK, stats)
}
