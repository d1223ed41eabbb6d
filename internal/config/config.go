package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// MailboxConfig holds the IMAP account the sync runs against.
type MailboxConfig struct {
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	TLS          bool   `yaml:"tls"`
	SentFolder   string `yaml:"sent_folder"`
	InboxFolder  string `yaml:"inbox_folder"`
	TimeoutSecs  int    `yaml:"timeout_seconds"`
	AccountEmail string `yaml:"account_email"`
}

// SyncConfig carries the reconciliation tunables. The dedup windows are
// deliberately configurable rather than constants; the temporal-range
// heuristic in particular is probabilistic and operators may need to
// tighten it per deployment.
type SyncConfig struct {
	InternalDomains          []string `yaml:"internal_domains"`
	DefaultLimit             int      `yaml:"default_limit"`
	DefaultSinceHours        int      `yaml:"default_since_hours"`
	MinContentLength         int      `yaml:"min_content_length"`
	ConversationLookbackDays int      `yaml:"conversation_lookback_days"`
	ThreadLookbackDays       int      `yaml:"thread_lookback_days"`
	ThreadFetchLimit         int      `yaml:"thread_fetch_limit"`
	BatchBudgetSecs          int      `yaml:"batch_budget_seconds"`
	ExactWindowMins          int      `yaml:"dedup_exact_window_minutes"`
	RangeSpanHours           int      `yaml:"dedup_range_span_hours"`
	BoundaryWindowMins       int      `yaml:"dedup_boundary_window_minutes"`
	RecipientWindowMins      int      `yaml:"dedup_recipient_window_minutes"`
	ContentWindowHours       int      `yaml:"dedup_content_window_hours"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	DB      DBConfig      `yaml:"db"`
	Redis   RedisConfig   `yaml:"redis"`
	MQ      MQConfig      `yaml:"mq"`
	JWT     JWTConfig     `yaml:"jwt"`
	Mailbox MailboxConfig `yaml:"mailbox"`
	Sync    SyncConfig    `yaml:"sync"`
}

// Load reads config.yaml (or CONFIG_PATH) and applies env overrides.
func Load() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("config: %s not readable (%v), relying on env and defaults", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Fatalf("config: failed to parse %s: %v", path, err)
	}

	overrideFromEnv(cfg)
	applyDefaults(cfg)
	return cfg
}

func overrideFromEnv(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}
	if host := os.Getenv("IMAP_HOST"); host != "" {
		cfg.Mailbox.Host = host
	}
	if user := os.Getenv("IMAP_USERNAME"); user != "" {
		cfg.Mailbox.Username = user
	}
	if password := os.Getenv("IMAP_PASSWORD"); password != "" {
		cfg.Mailbox.Password = password
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Mailbox.Port == "" {
		cfg.Mailbox.Port = "993"
	}
	if cfg.Mailbox.SentFolder == "" {
		cfg.Mailbox.SentFolder = "Sent"
	}
	if cfg.Mailbox.InboxFolder == "" {
		cfg.Mailbox.InboxFolder = "INBOX"
	}
	if cfg.Mailbox.TimeoutSecs == 0 {
		cfg.Mailbox.TimeoutSecs = 30
	}
	if cfg.Sync.DefaultLimit == 0 {
		cfg.Sync.DefaultLimit = 10
	}
	if cfg.Sync.DefaultSinceHours == 0 {
		cfg.Sync.DefaultSinceHours = 24
	}
	if cfg.Sync.MinContentLength == 0 {
		cfg.Sync.MinContentLength = 10
	}
	if cfg.Sync.ConversationLookbackDays == 0 {
		cfg.Sync.ConversationLookbackDays = 30
	}
	if cfg.Sync.ThreadLookbackDays == 0 {
		cfg.Sync.ThreadLookbackDays = 30
	}
	if cfg.Sync.ThreadFetchLimit == 0 {
		cfg.Sync.ThreadFetchLimit = 50
	}
	if cfg.Sync.BatchBudgetSecs == 0 {
		cfg.Sync.BatchBudgetSecs = 300
	}
	if cfg.Sync.ExactWindowMins == 0 {
		cfg.Sync.ExactWindowMins = 5
	}
	if cfg.Sync.RangeSpanHours == 0 {
		cfg.Sync.RangeSpanHours = 24
	}
	if cfg.Sync.BoundaryWindowMins == 0 {
		cfg.Sync.BoundaryWindowMins = 30
	}
	if cfg.Sync.RecipientWindowMins == 0 {
		cfg.Sync.RecipientWindowMins = 60
	}
	if cfg.Sync.ContentWindowHours == 0 {
		cfg.Sync.ContentWindowHours = 24
	}
}
