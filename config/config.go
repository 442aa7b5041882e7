package config

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Credentials identify the marketplace account every worker signs in with.
type Credentials struct {
	ID     string
	Secret string
}

// Config holds all runtime configuration for the bot.
type Config struct {
	InstanceCount int
	WaitForTicket time.Duration
	Credentials   Credentials

	BaseURL    string
	Headless   bool
	UserAgents []string

	// Timing
	StepTimeout    time.Duration
	SampleTimeout  time.Duration
	RefreshDelay   time.Duration
	LoginTimeout   time.Duration
	CancelCooldown time.Duration
	SettleInterval time.Duration
	IdleDelay      time.Duration

	// Queue
	QueueBackend string
	QueueFile    string
	SQLitePath   string

	// PostgreSQL
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// PubNub
	PubNubSubscribeKey string
	PubNubPublishKey   string
	PubNubUserID       string
	PubNubChannel      string

	ReportFile string
	LogFile    string
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		InstanceCount: 1,
		WaitForTicket: 5 * time.Minute,

		BaseURL:    "https://tradedesk.ticketmaster.com/",
		Headless:   false,
		UserAgents: []string{defaultUserAgent},

		StepTimeout:    10 * time.Second,
		SampleTimeout:  1 * time.Second,
		RefreshDelay:   500 * time.Millisecond,
		LoginTimeout:   30 * time.Second,
		CancelCooldown: 20 * time.Second,
		SettleInterval: 60 * time.Second,
		IdleDelay:      1 * time.Second,

		QueueBackend: "csv",
		QueueFile:    "BotRes/EventURLs.csv",
		SQLitePath:   "BotRes/queue.db",

		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "tradedesk",
		DBName:    "tradedesk",
		DBSSLMode: "disable",

		PubNubUserID:  "Channel-TradeDeskBot",
		PubNubChannel: "Channel-Machine2",

		ReportFile: "checkout_attempts.json",
		LogFile:    "TradeDeskBot.log",
	}
}

// settingsFile mirrors the bot's settings document. YAML is a superset of
// JSON, so the legacy Settings.json layout decodes unchanged.
type settingsFile struct {
	Settings struct {
		Email                  string   `yaml:"Email"`
		Password               string   `yaml:"Password"`
		WaitForTicket          *float64 `yaml:"WaitForTicket"`
		NumberOfInstancesToRun *int     `yaml:"NumberOfInstancesToRun"`
		Channel                string   `yaml:"PubNubKeyChannelInstance_2"`
		SubscribeKey           string   `yaml:"PubNubSubscribeKey"`
		PublishKey             string   `yaml:"PubNubPublishKey"`
		Headless               *bool    `yaml:"Headless"`
		QueueBackend           string   `yaml:"QueueBackend"`
		QueueFile              string   `yaml:"QueueFile"`
	} `yaml:"Settings"`
}

// Load builds a Config from defaults, then the settings file at path (if
// path is non-empty and the file exists), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if file := os.Getenv("USER_AGENTS_FILE"); file != "" {
		agents, err := readLines(file)
		if err != nil {
			return Config{}, fmt.Errorf("read user agents: %w", err)
		}
		if len(agents) > 0 {
			cfg.UserAgents = agents
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings %s: %w", path, err)
	}

	var f settingsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}

	s := f.Settings
	if s.Email != "" {
		c.Credentials.ID = s.Email
	}
	if s.Password != "" {
		c.Credentials.Secret = s.Password
	}
	if s.WaitForTicket != nil {
		c.WaitForTicket = minutes(*s.WaitForTicket)
	}
	if s.NumberOfInstancesToRun != nil {
		c.InstanceCount = *s.NumberOfInstancesToRun
	}
	if s.Channel != "" {
		c.PubNubChannel = s.Channel
	}
	if s.SubscribeKey != "" {
		c.PubNubSubscribeKey = s.SubscribeKey
	}
	if s.PublishKey != "" {
		c.PubNubPublishKey = s.PublishKey
	}
	if s.Headless != nil {
		c.Headless = *s.Headless
	}
	if s.QueueBackend != "" {
		c.QueueBackend = s.QueueBackend
	}
	if s.QueueFile != "" {
		c.QueueFile = s.QueueFile
	}
	return nil
}

func (c *Config) applyEnv() {
	c.InstanceCount = getEnvInt("INSTANCE_COUNT", c.InstanceCount)
	if v := getEnvFloat("WAIT_FOR_TICKET_MINUTES", -1); v >= 0 {
		c.WaitForTicket = minutes(v)
	}
	c.Credentials.ID = getEnv("TRADEDESK_EMAIL", c.Credentials.ID)
	c.Credentials.Secret = getEnv("TRADEDESK_PASSWORD", c.Credentials.Secret)

	c.BaseURL = getEnv("TRADEDESK_BASE_URL", c.BaseURL)
	c.Headless = getEnvBool("HEADLESS", c.Headless)

	c.StepTimeout = getEnvDuration("STEP_TIMEOUT", c.StepTimeout)
	c.SampleTimeout = getEnvDuration("SAMPLE_TIMEOUT", c.SampleTimeout)
	c.RefreshDelay = getEnvDuration("REFRESH_DELAY", c.RefreshDelay)
	c.LoginTimeout = getEnvDuration("LOGIN_TIMEOUT", c.LoginTimeout)
	c.CancelCooldown = getEnvDuration("CANCEL_COOLDOWN", c.CancelCooldown)
	c.SettleInterval = getEnvDuration("SETTLE_INTERVAL", c.SettleInterval)
	c.IdleDelay = getEnvDuration("IDLE_DELAY", c.IdleDelay)

	c.QueueBackend = getEnv("QUEUE_BACKEND", c.QueueBackend)
	c.QueueFile = getEnv("QUEUE_FILE", c.QueueFile)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)

	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnvInt("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBSSLMode = getEnv("DB_SSLMODE", c.DBSSLMode)

	c.PubNubSubscribeKey = getEnv("PUBNUB_SUBSCRIBE_KEY", c.PubNubSubscribeKey)
	c.PubNubPublishKey = getEnv("PUBNUB_PUBLISH_KEY", c.PubNubPublishKey)
	c.PubNubUserID = getEnv("PUBNUB_USER_ID", c.PubNubUserID)
	c.PubNubChannel = getEnv("PUBNUB_CHANNEL", c.PubNubChannel)

	c.ReportFile = getEnv("REPORT_FILE", c.ReportFile)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
}

// Validate checks the options every component relies on.
func (c Config) Validate() error {
	if c.InstanceCount < 1 {
		return fmt.Errorf("instance count must be positive, got %d", c.InstanceCount)
	}
	if c.WaitForTicket <= 0 {
		return fmt.Errorf("wait for ticket must be positive, got %s", c.WaitForTicket)
	}
	if c.StepTimeout <= 0 || c.SampleTimeout <= 0 || c.LoginTimeout <= 0 {
		return errors.New("step, sample and login timeouts must be positive")
	}
	switch c.QueueBackend {
	case "csv", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown queue backend %q", c.QueueBackend)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBSSLMode,
	)
}

// RandomUserAgent picks one of the configured user agents.
func (c Config) RandomUserAgent() string {
	if len(c.UserAgents) == 0 {
		return defaultUserAgent
	}
	return c.UserAgents[rand.Intn(len(c.UserAgents))]
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

func getEnv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
