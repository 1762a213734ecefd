package cfg

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/feedrelay.db" description:"Path to the SQLite database file"`

	// Application configuration
	FeedsDir    string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing topic configuration files"`
	Port        string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl     string `long:"base-url" env:"BASE_URL" description:"Public base URL for the webhook callback (e.g., https://relay.example.com)"`
	WorkerCount int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for item processing"`

	// WebSub hub configuration
	HubURL        string `long:"hub-url" env:"HUB_URL" default:"https://push.superfeedr.com" description:"WebSub hub URL"`
	HubUser       string `long:"hub-user" env:"HUB_USER" description:"Hub basic auth user"`
	HubPassword   string `long:"hub-password" env:"HUB_PASSWORD" description:"Hub basic auth password"`
	LeaseSeconds  int    `long:"lease-seconds" env:"LEASE_SECONDS" default:"86400" description:"Requested subscription lease in seconds"`
	RenewInterval int    `long:"renew-interval" env:"RENEW_INTERVAL" default:"43200" description:"Subscription renewal interval in seconds"`

	// Pipeline configuration
	DedupTTL       int `long:"dedup-ttl" env:"DEDUP_TTL" default:"86400" description:"Seconds a published item stays deduplicated"`
	ClaimTTL       int `long:"claim-ttl" env:"CLAIM_TTL" default:"300" description:"Seconds an in-flight claim blocks concurrent deliveries"`
	SweepInterval  int `long:"sweep-interval" env:"SWEEP_INTERVAL" default:"3600" description:"Interval for sweeping expired dedup records in seconds"`
	ProcessDelay   int `long:"process-delay" env:"PROCESS_DELAY_SECONDS" default:"15" description:"Minimum delay between item publishes in seconds"`
	PublishTimeout int `long:"publish-timeout" env:"PUBLISH_TIMEOUT" default:"25" description:"Per-destination publish timeout in seconds"`

	// Rephrasing backend
	LLMBaseURL  string `long:"llm-base-url" env:"LLM_BASE_URL" description:"Base URL of the OpenAI-compatible rephrasing endpoint (required)" required:"true"`
	LLMAPIKeys  string `long:"llm-api-keys" env:"LLM_API_KEYS" description:"Comma-separated API keys for the rephrasing endpoint (required)" required:"true"`
	LLMModel    string `long:"llm-model" env:"LLM_MODEL" default:"llama-3.3-70b-versatile" description:"Model name for rephrasing"`
	KeyCooldown int    `long:"key-cooldown" env:"KEY_COOLDOWN" default:"60" description:"Base cooldown in seconds for a rate-limited API key"`

	// Publish destinations
	Platforms           string `long:"platforms" env:"PLATFORMS" default:"facebook" description:"Comma-separated publish platforms (facebook, twitter)"`
	FacebookPageIDs     string `long:"facebook-page-ids" env:"FACEBOOK_PAGE_IDS" description:"Comma-separated Facebook page IDs"`
	FacebookPageTokens  string `long:"facebook-page-tokens" env:"FACEBOOK_PAGE_TOKENS" description:"Comma-separated Facebook page access tokens"`
	TwitterBearerTokens string `long:"twitter-bearer-tokens" env:"TWITTER_BEARER_TOKENS" description:"Comma-separated Twitter bearer tokens"`

	// One-shot modes
	SubscribeOnly bool `long:"subscribe-only" description:"Subscribe configured topics and exit"`
	Unsubscribe   bool `long:"unsubscribe" description:"Unsubscribe configured topics and exit"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Feed Relay/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:              raw.DBPath,
		FeedsDir:            raw.FeedsDir,
		Port:                raw.Port,
		BaseUrl:             strings.TrimRight(raw.BaseUrl, "/"),
		WorkerCount:         raw.WorkerCount,
		HubURL:              strings.TrimRight(raw.HubURL, "/"),
		HubUser:             raw.HubUser,
		HubPassword:         raw.HubPassword,
		LeaseSeconds:        raw.LeaseSeconds,
		RenewInterval:       raw.RenewInterval,
		DedupTTL:            raw.DedupTTL,
		ClaimTTL:            raw.ClaimTTL,
		SweepInterval:       raw.SweepInterval,
		ProcessDelay:        raw.ProcessDelay,
		PublishTimeout:      raw.PublishTimeout,
		LLMBaseURL:          strings.TrimRight(raw.LLMBaseURL, "/"),
		LLMAPIKeys:          splitList(raw.LLMAPIKeys),
		LLMModel:            raw.LLMModel,
		KeyCooldown:         raw.KeyCooldown,
		Platforms:           splitList(strings.ToLower(raw.Platforms)),
		FacebookPageIDs:     splitList(raw.FacebookPageIDs),
		FacebookPageTokens:  splitList(raw.FacebookPageTokens),
		TwitterBearerTokens: splitList(raw.TwitterBearerTokens),
		SubscribeOnly:       raw.SubscribeOnly,
		Unsubscribe:         raw.Unsubscribe,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if len(cfg.LLMAPIKeys) == 0 {
		return nil, fmt.Errorf("at least one rephrasing API key is required")
	}

	if len(cfg.FacebookPageIDs) != len(cfg.FacebookPageTokens) {
		return nil, fmt.Errorf("FACEBOOK_PAGE_IDS and FACEBOOK_PAGE_TOKENS must have the same length (%d vs %d)",
			len(cfg.FacebookPageIDs), len(cfg.FacebookPageTokens))
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// splitList splits a comma-separated value into trimmed non-empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
