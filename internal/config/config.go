// Package config loads clustermon's TOML configuration and applies
// environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/MikeSquared-Agency/clustermon/internal/mail"
	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
	"github.com/MikeSquared-Agency/clustermon/internal/msm"
	"github.com/MikeSquared-Agency/clustermon/internal/nodes"
	"github.com/MikeSquared-Agency/clustermon/internal/temps"
)

const DefaultPath = "/etc/clustermon/config.toml"

const (
	defaultLogLevel       = "warn"
	defaultCommandTimeout = 2 * time.Minute
	defaultPort           = 8760
)

type Config struct {
	// Host overrides the short hostname used in subjects and senders.
	Host           string
	LogLevel       string
	CommandTimeout time.Duration

	Mail     MailConfig
	MSM      MSMConfig
	Nodes    NodesConfig
	Temps    TempsConfig
	NATS     NATSConfig
	Slack    SlackConfig
	Database DatabaseConfig
	API      APIConfig
	Metrics  MetricsConfig
}

type MailConfig struct {
	Relay     string
	Recipient string
}

type MSMConfig struct {
	LogPath           string
	Tag               string
	Exclude           []string
	Tolerance         time.Duration
	LockTimeout       time.Duration
	Unparseable       msm.UnparseablePolicy
	TouchOnEmpty      bool
	TouchOnIncludeAll bool
}

type NodesConfig struct {
	CmshPath string
}

type TempsConfig struct {
	CPUs      int
	Cores     int
	Dir       string
	WarnLevel float64
	// SensorsCommand and TopCommand are command lines; shell operators are
	// allowed. An empty TopCommand leaves the load summary out of alerts.
	SensorsCommand string
	TopCommand     string
}

type NATSConfig struct {
	URL   string
	Token string
}

// SlackConfig enables posting alerts to a channel when both are set.
type SlackConfig struct {
	BotToken string
	Channel  string
}

type DatabaseConfig struct {
	URL string
}

type APIConfig struct {
	Port int
}

type MetricsConfig struct {
	// TextfileDir enables the node_exporter textfile sink when set.
	TextfileDir string
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		LogLevel:       defaultLogLevel,
		CommandTimeout: defaultCommandTimeout,
		Mail: MailConfig{
			Relay:     mail.DefaultRelay,
			Recipient: mail.DefaultRecipient,
		},
		MSM: MSMConfig{
			LogPath:           msm.DefaultLogPath,
			Tag:               msm.DefaultTag,
			Exclude:           append([]string(nil), msm.DefaultExclusions...),
			Tolerance:         msm.DefaultTolerance,
			LockTimeout:       msm.DefaultLockTimeout,
			Unparseable:       msm.SkipUnparseable,
			TouchOnEmpty:      true,
			TouchOnIncludeAll: true,
		},
		Nodes: NodesConfig{CmshPath: nodes.DefaultCmsh},
		Temps: TempsConfig{
			CPUs:           temps.DefaultCPUs,
			Cores:          temps.DefaultCores,
			Dir:            temps.DefaultDir,
			WarnLevel:      temps.DefaultWarnLevel,
			SensorsCommand: "sensors",
			TopCommand:     "top -b -n 1",
		},
		API: APIConfig{Port: defaultPort},
	}
}

// fileConfig mirrors the TOML layout. Pointers distinguish an absent key
// from an explicit zero or false.
type fileConfig struct {
	Host           string `toml:"host"`
	LogLevel       string `toml:"log_level"`
	CommandTimeout string `toml:"command_timeout"`

	Mail struct {
		Relay     string `toml:"relay"`
		Recipient string `toml:"recipient"`
	} `toml:"mail"`

	MSM struct {
		LogPath           string   `toml:"log_path"`
		Tag               string   `toml:"tag"`
		Exclude           []string `toml:"exclude"`
		Tolerance         string   `toml:"tolerance"`
		LockTimeout       string   `toml:"lock_timeout"`
		Unparseable       string   `toml:"unparseable"`
		TouchOnEmpty      *bool    `toml:"touch_on_empty"`
		TouchOnIncludeAll *bool    `toml:"touch_on_include_all"`
	} `toml:"msm"`

	Nodes struct {
		CmshPath string `toml:"cmsh_path"`
	} `toml:"nodes"`

	Temps struct {
		CPUs           *int     `toml:"cpus"`
		Cores          *int     `toml:"cores"`
		Dir            string   `toml:"dir"`
		WarnLevel      *float64 `toml:"warn_level"`
		SensorsCommand string   `toml:"sensors_command"`
		TopCommand     *string  `toml:"top_command"`
	} `toml:"temps"`

	NATS struct {
		URL   string `toml:"url"`
		Token string `toml:"token"`
	} `toml:"nats"`

	Slack struct {
		BotToken string `toml:"bot_token"`
		Channel  string `toml:"channel"`
	} `toml:"slack"`

	Database struct {
		URL string `toml:"url"`
	} `toml:"database"`

	API struct {
		Port int `toml:"port"`
	} `toml:"api"`

	Metrics struct {
		TextfileDir string `toml:"textfile_dir"`
	} `toml:"metrics"`
}

// Load reads the config at path (DefaultPath when empty). Only a missing
// DefaultPath falls back to defaults; a missing explicit path is an error.
// Env overrides are applied last.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	return load(path, path == DefaultPath)
}

func load(path string, optional bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && optional:
	case errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("config %s not found: %w", path, monitor.ErrInvalidArgument)
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		var raw fileConfig
		if err := toml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %v: %w", path, err, monitor.ErrInvalidArgument)
		}
		if err := cfg.merge(raw); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) merge(raw fileConfig) error {
	setStr(&c.Host, raw.Host)
	setStr(&c.LogLevel, raw.LogLevel)
	if err := setDuration(&c.CommandTimeout, "command_timeout", raw.CommandTimeout); err != nil {
		return err
	}

	setStr(&c.Mail.Relay, raw.Mail.Relay)
	setStr(&c.Mail.Recipient, raw.Mail.Recipient)

	setStr(&c.MSM.LogPath, raw.MSM.LogPath)
	setStr(&c.MSM.Tag, raw.MSM.Tag)
	if raw.MSM.Exclude != nil {
		c.MSM.Exclude = raw.MSM.Exclude
	}
	if err := setDuration(&c.MSM.Tolerance, "msm.tolerance", raw.MSM.Tolerance); err != nil {
		return err
	}
	if err := setDuration(&c.MSM.LockTimeout, "msm.lock_timeout", raw.MSM.LockTimeout); err != nil {
		return err
	}
	if v := strings.TrimSpace(raw.MSM.Unparseable); v != "" {
		p, err := msm.ParsePolicy(v)
		if err != nil {
			return fmt.Errorf("msm.unparseable: %w", err)
		}
		c.MSM.Unparseable = p
	}
	if raw.MSM.TouchOnEmpty != nil {
		c.MSM.TouchOnEmpty = *raw.MSM.TouchOnEmpty
	}
	if raw.MSM.TouchOnIncludeAll != nil {
		c.MSM.TouchOnIncludeAll = *raw.MSM.TouchOnIncludeAll
	}

	setStr(&c.Nodes.CmshPath, raw.Nodes.CmshPath)

	if raw.Temps.CPUs != nil {
		c.Temps.CPUs = *raw.Temps.CPUs
	}
	if raw.Temps.Cores != nil {
		c.Temps.Cores = *raw.Temps.Cores
	}
	setStr(&c.Temps.Dir, raw.Temps.Dir)
	if raw.Temps.WarnLevel != nil {
		c.Temps.WarnLevel = *raw.Temps.WarnLevel
	}
	setStr(&c.Temps.SensorsCommand, raw.Temps.SensorsCommand)
	if raw.Temps.TopCommand != nil {
		c.Temps.TopCommand = strings.TrimSpace(*raw.Temps.TopCommand)
	}

	setStr(&c.NATS.URL, raw.NATS.URL)
	setStr(&c.NATS.Token, raw.NATS.Token)
	setStr(&c.Slack.BotToken, raw.Slack.BotToken)
	setStr(&c.Slack.Channel, raw.Slack.Channel)
	setStr(&c.Database.URL, raw.Database.URL)
	if raw.API.Port != 0 {
		c.API.Port = raw.API.Port
	}
	setStr(&c.Metrics.TextfileDir, raw.Metrics.TextfileDir)
	return nil
}

func (c *Config) applyEnv() {
	c.LogLevel = envStr("CLUSTERMON_LOG_LEVEL", c.LogLevel)
	c.Mail.Relay = envStr("CLUSTERMON_MAIL_RELAY", c.Mail.Relay)
	c.API.Port = envInt("CLUSTERMON_PORT", c.API.Port)
	c.NATS.URL = envStr("NATS_URL", c.NATS.URL)
	c.NATS.Token = envStr("NATS_TOKEN", c.NATS.Token)
	c.Slack.BotToken = envStr("SLACK_BOT_TOKEN", c.Slack.BotToken)
	c.Slack.Channel = envStr("SLACK_CHANNEL", c.Slack.Channel)
	c.Database.URL = envStr("DATABASE_URL", c.Database.URL)
}

// Validate rejects values no task can run with.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q: %w", c.LogLevel, monitor.ErrInvalidArgument)
	}
	if c.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout must not be negative: %w", monitor.ErrInvalidArgument)
	}
	if c.MSM.Tolerance < 0 {
		return fmt.Errorf("msm.tolerance must not be negative: %w", monitor.ErrInvalidArgument)
	}
	if strings.TrimSpace(c.Temps.SensorsCommand) == "" {
		return fmt.Errorf("temps.sensors_command is empty: %w", monitor.ErrInvalidArgument)
	}
	if c.Temps.CPUs < 1 || c.Temps.Cores < 0 {
		return fmt.Errorf("temps topology %d x %d: %w", c.Temps.CPUs, c.Temps.Cores, monitor.ErrInvalidArgument)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d: %w", c.API.Port, monitor.ErrInvalidArgument)
	}
	return nil
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s %q: %v: %w", key, v, err, monitor.ErrInvalidArgument)
	}
	*dst = d
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
