package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	feedsDir string
	cache    map[string]*Config
	mu       sync.RWMutex
}

func NewConfigCache(feedsDir string) *ConfigCache {
	return &ConfigCache{
		feedsDir: feedsDir,
		cache:    make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.feedsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.feedsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		// Derive topic name from filename (remove .yml extension)
		fileName := filepath.Base(file)
		topicName := fileName[:len(fileName)-4]

		config, err := cc.LoadConfig(topicName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Topic configuration loaded", "topic", topicName, "url", config.URL, "enabled", config.Settings.Enabled)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(topicName string) (*Config, error) {
	configFile := filepath.Join(cc.feedsDir, topicName+".yml")
	config, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	config.Name = topicName

	if err := cc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.Name] = config

	return config, nil
}

func (cc *ConfigCache) GetConfig(topicName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[topicName]
	if !ok {
		return nil, fmt.Errorf("topic config with name '%s' not found", topicName)
	}
	return config, nil
}

// FindByTopic looks up a configuration by its topic feed URL.
func (cc *ConfigCache) FindByTopic(topicURL string) *Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	for _, config := range cc.cache {
		if config.URL == topicURL {
			return config
		}
	}
	return nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

// Secrets returns the signature secrets of all configured topics.
func (cc *ConfigCache) Secrets() []string {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	var secrets []string
	for _, config := range cc.cache {
		if config.Settings.Secret != "" {
			secrets = append(secrets, config.Settings.Secret)
		}
	}
	return secrets
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

func (cc *ConfigCache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if config.Name == "" {
		return fmt.Errorf("topic name is required")
	}
	if config.URL == "" {
		return fmt.Errorf("topic URL is required")
	}
	if config.Settings.LeaseSeconds < 0 {
		return fmt.Errorf("lease_seconds must not be negative")
	}

	return nil
}
