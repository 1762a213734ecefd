package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/mkoval/feedrelay/app/api"
	"github.com/mkoval/feedrelay/app/cfg"
	"github.com/mkoval/feedrelay/app/database"
	"github.com/mkoval/feedrelay/app/feed"
	"github.com/mkoval/feedrelay/app/publish"
	"github.com/mkoval/feedrelay/app/rephrase"
	"github.com/mkoval/feedrelay/app/tasks"
	"github.com/mkoval/feedrelay/app/websub"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if c == nil {
		// Help was requested
		return
	}

	logLevel := slog.LevelInfo
	if c.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Feed Relay", "version", c.Version)

	db, err := database.NewConnection(c.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", c.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrationVersion, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", c.DBPath, "migration_version", migrationVersion, "dirty", dirty)

	dedupStore := database.NewDedupRepository(db)
	if removed, err := dedupStore.Sweep(); err != nil {
		slog.Warn("Startup dedup sweep failed", "error", err)
	} else if removed > 0 {
		slog.Info("Swept expired dedup records on startup", "removed", removed)
	}

	configCache := feed.NewConfigCache(c.FeedsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load topic configurations", "dir", c.FeedsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded topic configurations", "count", configCache.GetConfigCount())

	httpClient := &http.Client{Timeout: 30 * time.Second}
	hubClient := websub.NewClient(c.HubURL, c.HubUser, c.HubPassword, c.UserAgent, httpClient)

	if c.SubscribeOnly || c.Unsubscribe {
		runOneShot(c, hubClient, configCache)
		return
	}

	keyPool := rephrase.NewKeyPool(c.LLMAPIKeys, time.Duration(c.KeyCooldown)*time.Second)
	rephraser := rephrase.NewClient(c.LLMBaseURL, c.LLMAPIKeys, c.LLMModel, keyPool)

	fanout := publish.NewFanout(buildPlatformClients(c, httpClient), time.Duration(c.PublishTimeout)*time.Second)
	slog.Info("Configured publish destinations", "count", fanout.DestinationCount())

	limiter := rate.NewLimiter(rate.Every(time.Duration(c.ProcessDelay)*time.Second), 1)

	scheduler := tasks.NewTaskScheduler(dedupStore, configCache, hubClient)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(configCache, feed.NewParser(), dedupStore, scheduler,
		rephraser, keyPool, fanout, limiter,
		time.Duration(c.ClaimTTL)*time.Second, time.Duration(c.DedupTTL)*time.Second)
	server := api.NewServer(handler)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", c.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
}

// buildPlatformClients assembles one publish client per configured
// destination account, filtered by the enabled platform list.
func buildPlatformClients(c *cfg.Cfg, httpClient *http.Client) []publish.PlatformClient {
	enabled := make(map[string]bool, len(c.Platforms))
	for _, platform := range c.Platforms {
		enabled[platform] = true
	}

	var clients []publish.PlatformClient

	if enabled[string(publish.PlatformFacebook)] {
		for i, pageID := range c.FacebookPageIDs {
			clients = append(clients, publish.NewFacebookClient(pageID, c.FacebookPageTokens[i], httpClient))
		}
	}

	if enabled[string(publish.PlatformTwitter)] {
		for _, token := range c.TwitterBearerTokens {
			clients = append(clients, publish.NewTwitterClient(token, httpClient))
		}
	}

	return clients
}

// runOneShot subscribes or unsubscribes every enabled topic and exits.
func runOneShot(c *cfg.Cfg, hubClient *websub.Client, configCache *feed.ConfigCache) {
	callbackURL := c.CallbackURL()
	if callbackURL == "" {
		slog.Error("BASE_URL must be set for subscription management")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	failed := 0
	for _, config := range configCache.GetEnabledConfigs() {
		var err error
		if c.Unsubscribe {
			err = hubClient.Unsubscribe(ctx, config.URL, callbackURL)
		} else {
			lease := config.Settings.LeaseSeconds
			if lease == 0 {
				lease = c.LeaseSeconds
			}
			err = hubClient.Subscribe(ctx, config.URL, callbackURL, config.Settings.Secret, lease)
		}

		if err != nil {
			slog.Error("Subscription request failed", "topic", config.URL, "error", err)
			failed++
			continue
		}

		slog.Info("Subscription request accepted", "topic", config.URL, "unsubscribe", c.Unsubscribe)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
