// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/projectassist/services/assistant/clients/confluence"
	"github.com/AleutianAI/projectassist/services/assistant/docs"
	"github.com/AleutianAI/projectassist/services/assistant/oracle"
)

// Config is the service configuration.
//
// Description:
//
//	Loaded from an optional YAML file, then overlaid by environment
//	variables, then validated. Secrets (API tokens) are only read from the
//	environment.
type Config struct {
	Server     ServerConfig          `yaml:"server"`
	Jira       JiraConfig            `yaml:"jira"`
	Bitbucket  BitbucketConfig       `yaml:"bitbucket"`
	Confluence ConfluenceConfig      `yaml:"confluence"`
	Oracle     oracle.ProviderConfig `yaml:"oracle"`
	Usage      InfluxConfig          `yaml:"usage"`

	// OracleTimeout bounds each oracle call made by the classifier,
	// generator and formatters.
	OracleTimeout time.Duration `yaml:"oracle_timeout" validate:"gte=0"`

	// Prose enables the oracle rewrite of markdown answers.
	Prose bool `yaml:"prose"`

	// RulesPath overrides the embedded classifier rules.
	RulesPath string `yaml:"rules_path"`

	// WatchRules reloads RulesPath when the file changes.
	WatchRules bool `yaml:"watch_rules"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	Debug           bool          `yaml:"debug"`
}

// JiraConfig configures the issue tracker.
type JiraConfig struct {
	BaseURL    string `yaml:"base_url" validate:"required,url"`
	Username   string `yaml:"username"`
	Token      string `yaml:"-"`
	ProjectKey string `yaml:"project_key" validate:"required"`
}

// BitbucketConfig configures the code host. An empty Workspace disables it.
type BitbucketConfig struct {
	BaseURL     string `yaml:"base_url" validate:"omitempty,url"`
	Workspace   string `yaml:"workspace"`
	Username    string `yaml:"username"`
	Token       string `yaml:"-"`
	DefaultRepo string `yaml:"default_repo"`
}

// Enabled reports whether a workspace is configured.
func (c BitbucketConfig) Enabled() bool { return c.Workspace != "" }

// ConfluenceConfig configures the documentation host. An empty BaseURL
// disables it.
type ConfluenceConfig struct {
	BaseURL   string        `yaml:"base_url" validate:"omitempty,url"`
	Username  string        `yaml:"username"`
	Token     string        `yaml:"-"`
	RootPages []string      `yaml:"root_pages"`
	MaxDepth  int           `yaml:"max_depth" validate:"gte=0"`
	MaxPages  int           `yaml:"max_pages" validate:"gte=0"`
	Delay     time.Duration `yaml:"delay" validate:"gte=0"`
	CachePath string        `yaml:"cache_path"`
	CacheTTL  time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

// Enabled reports whether a site is configured.
func (c ConfluenceConfig) Enabled() bool { return c.BaseURL != "" }

// InfluxConfig configures the usage export. An empty URL disables it.
type InfluxConfig struct {
	URL           string        `yaml:"url" validate:"omitempty,url"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	Token         string        `yaml:"-"`
	FlushInterval time.Duration `yaml:"flush_interval" validate:"gte=0"`
}

// Enabled reports whether an InfluxDB URL is configured.
func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// DefaultConfig returns the configuration used before any file or
// environment overlay.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Confluence: ConfluenceConfig{
			MaxDepth: confluence.DefaultMaxDepth,
			MaxPages: confluence.DefaultMaxPages,
			Delay:    confluence.DefaultDelay,
			CacheTTL: docs.DefaultCacheTTL,
		},
		OracleTimeout: 15 * time.Second,
	}
}

// LoadConfig reads path (optional), overlays the environment and validates.
//
// Inputs:
//   - path: YAML file. Empty skips the file.
//
// Outputs:
//   - Config: The validated configuration.
//   - error: Non-nil on read, parse or validation failure.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays ASSIST_*, JIRA_*, BITBUCKET_*, CONFLUENCE_* and INFLUX_*
// values.
func (c *Config) applyEnv() error {
	envString("ASSIST_ADDR", &c.Server.Addr)
	envBool("ASSIST_DEBUG", &c.Server.Debug)
	envBool("ASSIST_PROSE", &c.Prose)
	envString("ASSIST_RULES", &c.RulesPath)
	envBool("ASSIST_WATCH_RULES", &c.WatchRules)
	if err := envDuration("ASSIST_ORACLE_TIMEOUT", &c.OracleTimeout); err != nil {
		return err
	}

	envString("JIRA_BASE_URL", &c.Jira.BaseURL)
	envString("JIRA_USERNAME", &c.Jira.Username)
	envString("JIRA_API_TOKEN", &c.Jira.Token)
	envString("JIRA_PROJECT_KEY", &c.Jira.ProjectKey)
	c.Jira.ProjectKey = strings.ToUpper(c.Jira.ProjectKey)

	envString("BITBUCKET_BASE_URL", &c.Bitbucket.BaseURL)
	envString("BITBUCKET_WORKSPACE", &c.Bitbucket.Workspace)
	envString("BITBUCKET_USERNAME", &c.Bitbucket.Username)
	envString("BITBUCKET_APP_PASSWORD", &c.Bitbucket.Token)
	envString("BITBUCKET_DEFAULT_REPO", &c.Bitbucket.DefaultRepo)

	envString("CONFLUENCE_BASE_URL", &c.Confluence.BaseURL)
	envString("CONFLUENCE_USERNAME", &c.Confluence.Username)
	envString("CONFLUENCE_API_TOKEN", &c.Confluence.Token)
	envString("CONFLUENCE_CACHE_PATH", &c.Confluence.CachePath)
	if v := os.Getenv("CONFLUENCE_ROOT_PAGES"); v != "" {
		c.Confluence.RootPages = splitList(v)
	}
	if err := envInt("CONFLUENCE_MAX_DEPTH", &c.Confluence.MaxDepth); err != nil {
		return err
	}

	envString("INFLUX_URL", &c.Usage.URL)
	envString("INFLUX_ORG", &c.Usage.Org)
	envString("INFLUX_BUCKET", &c.Usage.Bucket)
	envString("INFLUX_TOKEN", &c.Usage.Token)

	o, err := oracle.LoadConfigFromEnv(c.Oracle)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Oracle = o
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: invalid: %w", err)
	}
	if c.Usage.Enabled() && (c.Usage.Org == "" || c.Usage.Bucket == "") {
		return errors.New("config: usage url set without org and bucket")
	}
	if c.WatchRules && c.RulesPath == "" {
		return errors.New("config: watch_rules set without rules_path")
	}
	if len(c.Confluence.RootPages) > 0 && !c.Confluence.Enabled() {
		return errors.New("config: confluence root_pages set without base_url")
	}
	return nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
