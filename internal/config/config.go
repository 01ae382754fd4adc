package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone    = "America/New_York"
	fallbackTimezone   = "UTC"
	configPathEnv      = "DOCKETWATCH_CONFIG"
	databaseDSNEnv     = "DATABASE_DSN"
	databaseDriverEnv  = "DATABASE_DRIVER"
	sourceAPIKeyEnv    = "SOURCE_API_KEY"
	extractorAPIKeyEnv = "EXTRACTOR_API_KEY"
	openAIAPIKeyEnv    = "OPENAI_API_KEY"
	chatGPTModelEnv    = "CHATGPT_MODEL"
	projectIDEnv       = "PROJECT_ID"
	vertexRegionEnv    = "VERTEX_AI_REGION"
	sendGridAPIKeyEnv  = "SENDGRID_API_KEY"
	smtpPasswordEnv    = "SMTP_PASSWORD"
	redisAddrEnv       = "REDIS_ADDR"
	adminTokenEnv      = "ADMIN_TOKEN"
	logLevelEnv        = "LOG_LEVEL"
	archiveBucketEnv   = "ARCHIVE_BUCKET"
	otlpEndpointEnv    = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Source        SourceConfig       `yaml:"source"`
	Detection     DetectionConfig    `yaml:"detection"`
	Extraction    ExtractionConfig   `yaml:"extraction"`
	Summarizer    SummarizerConfig   `yaml:"summarizer"`
	Notifications NotificationConfig `yaml:"notifications"`
	Redis         RedisConfig        `yaml:"redis"`
	Archive       ArchiveConfig      `yaml:"archive"`
	Admin         AdminConfig        `yaml:"admin"`
	Tracing       TracingConfig      `yaml:"tracing"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig selects the SQL driver and its connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig defines when the periodic jobs run.
type SchedulerConfig struct {
	Timezone      string         `yaml:"timezone"`
	CheckInterval time.Duration  `yaml:"checkInterval"`
	DrainInterval time.Duration  `yaml:"drainInterval"`
	ResetHour     int            `yaml:"resetHour"`
	ResetMinute   int            `yaml:"resetMinute"`
	location      *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SourceConfig points at the external filing API.
type SourceConfig struct {
	BaseURL           string        `yaml:"baseUrl"`
	APIKey            string        `yaml:"apiKey"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

// DetectionConfig tunes the two-phase change check.
type DetectionConfig struct {
	QuickCheckLimit int           `yaml:"quickCheckLimit"`
	TargetedFetch   int           `yaml:"targetedFetch"`
	FallbackBatch   int           `yaml:"fallbackBatch"`
	DocketDelay     time.Duration `yaml:"docketDelay"`
	ErrorThreshold  int           `yaml:"errorThreshold"`
	MaxOverride     int           `yaml:"maxOverride"`
}

// ExtractionConfig describes the document text-extraction provider.
type ExtractionConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	APIKey        string        `yaml:"apiKey"`
	Timeout       time.Duration `yaml:"timeout"`
	StreamTimeout time.Duration `yaml:"streamTimeout"`
	MinTextLength int           `yaml:"minTextLength"`
}

// SummarizerConfig selects the AI provider and its resilience settings.
type SummarizerConfig struct {
	Provider         string        `yaml:"provider"`
	ChatGPT          ChatGPTConfig `yaml:"chatgpt"`
	Vertex           VertexConfig  `yaml:"vertex"`
	SystemPrompt     string        `yaml:"systemPrompt"`
	Timeout          time.Duration `yaml:"timeout"`
	TextBudget       int           `yaml:"textBudget"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
	Workers          int           `yaml:"workers"`
	DispatchDelay    time.Duration `yaml:"dispatchDelay"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// VertexConfig points at a Gemini model on Vertex AI.
type VertexConfig struct {
	ProjectID string `yaml:"projectId"`
	Region    string `yaml:"region"`
	Model     string `yaml:"model"`
}

// NotificationConfig covers delivery, digest schedule, fan-out limits and tier gating.
type NotificationConfig struct {
	Email                     EmailConfig   `yaml:"email"`
	DailyHour                 int           `yaml:"dailyHour"`
	WeeklyDay                 string        `yaml:"weeklyDay"`
	WeeklyHour                int           `yaml:"weeklyHour"`
	DrainPageSize             int           `yaml:"drainPageSize"`
	StaleClaimAfter           time.Duration `yaml:"staleClaimAfter"`
	MaxPerRun                 int           `yaml:"maxPerRun"`
	MaxDocketsPerRecipient    int           `yaml:"maxDocketsPerRecipient"`
	MaxFilingsPerNotification int           `yaml:"maxFilingsPerNotification"`
	SeedBatch                 int           `yaml:"seedBatch"`
	SeedFilings               int           `yaml:"seedFilings"`
	FreeSummaryChars          int           `yaml:"freeSummaryChars"`
	UpgradeURL                string        `yaml:"upgradeUrl"`
}

// Weekday parses WeeklyDay, defaulting to Monday.
func (n NotificationConfig) Weekday() time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(strings.TrimSpace(n.WeeklyDay), d.String()) {
			return d
		}
	}
	return time.Monday
}

// EmailConfig selects the email provider.
type EmailConfig struct {
	Provider    string         `yaml:"provider"`
	FromAddress string         `yaml:"fromAddress"`
	FromName    string         `yaml:"fromName"`
	SendGrid    SendGridConfig `yaml:"sendgrid"`
	SMTP        SMTPConfig     `yaml:"smtp"`
}

// SendGridConfig carries the SendGrid API key.
type SendGridConfig struct {
	APIKey string `yaml:"apiKey"`
}

// SMTPConfig describes a plain SMTP relay.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RedisConfig enables the distributed drain lock when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lockTtl"`
}

// ArchiveConfig enables archiving extracted text to GCS when Bucket is set.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
}

// AdminConfig configures the admin trigger API.
type AdminConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

// TracingConfig enables OTLP export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"serviceName"`
	Insecure    bool   `yaml:"insecure"`
}

// LoggingConfig holds the slog level name and output format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg := cfg
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(raw []byte) (Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.bindTimezone()
	return cfg, nil
}

// Validate reports missing credentials that make the pipeline unusable.
func (c Config) Validate() error {
	var missing []string

	if c.Database.DSN == "" {
		missing = append(missing, "database.dsn")
	}
	if c.Source.BaseURL == "" {
		missing = append(missing, "source.baseUrl")
	}
	if c.Source.APIKey == "" {
		missing = append(missing, "source.apiKey")
	}

	switch c.Summarizer.Provider {
	case "openai":
		if c.Summarizer.ChatGPT.APIKey == "" {
			missing = append(missing, "summarizer.chatgpt.apiKey")
		}
	case "vertex":
		if c.Summarizer.Vertex.ProjectID == "" || c.Summarizer.Vertex.Region == "" {
			missing = append(missing, "summarizer.vertex.projectId/region")
		}
	default:
		missing = append(missing, fmt.Sprintf("summarizer.provider (unknown %q)", c.Summarizer.Provider))
	}

	if c.Notifications.Email.FromAddress == "" {
		missing = append(missing, "notifications.email.fromAddress")
	}
	switch c.Notifications.Email.Provider {
	case "sendgrid":
		if c.Notifications.Email.SendGrid.APIKey == "" {
			missing = append(missing, "notifications.email.sendgrid.apiKey")
		}
	case "smtp":
		if c.Notifications.Email.SMTP.Host == "" {
			missing = append(missing, "notifications.email.smtp.host")
		}
	default:
		missing = append(missing, fmt.Sprintf("notifications.email.provider (unknown %q)", c.Notifications.Email.Provider))
	}

	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(sourceAPIKeyEnv); v != "" {
		c.Source.APIKey = v
	}
	if v := os.Getenv(extractorAPIKeyEnv); v != "" {
		c.Extraction.APIKey = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.Summarizer.ChatGPT.APIKey = v
	}
	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.Summarizer.ChatGPT.Model = v
	}
	if v := os.Getenv(projectIDEnv); v != "" {
		c.Summarizer.Vertex.ProjectID = v
	}
	if v := os.Getenv(vertexRegionEnv); v != "" {
		c.Summarizer.Vertex.Region = v
	}

	if v := os.Getenv(sendGridAPIKeyEnv); v != "" {
		c.Notifications.Email.SendGrid.APIKey = v
	}
	if v := os.Getenv(smtpPasswordEnv); v != "" {
		c.Notifications.Email.SMTP.Password = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(adminTokenEnv); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(archiveBucketEnv); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv(otlpEndpointEnv); v != "" {
		c.Tracing.Endpoint = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, fallbackTimezone)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{Driver: "postgres", DSN: ""},
		Scheduler: SchedulerConfig{
			Timezone:      defaultTimezone,
			CheckInterval: 30 * time.Minute,
			DrainInterval: 5 * time.Minute,
			ResetHour:     0,
			ResetMinute:   5,
		},
		Source: SourceConfig{
			BaseURL:           "https://publicapi.fcc.gov/ecfs/filings",
			Timeout:           20 * time.Second,
			RequestsPerSecond: 1,
			Burst:             1,
		},
		Detection: DetectionConfig{
			QuickCheckLimit: 1,
			TargetedFetch:   7,
			FallbackBatch:   10,
			DocketDelay:     2 * time.Second,
			ErrorThreshold:  5,
			MaxOverride:     50,
		},
		Extraction: ExtractionConfig{
			BaseURL:       "https://extract.example.org",
			Timeout:       60 * time.Second,
			StreamTimeout: 3 * time.Minute,
			MinTextLength: 100,
		},
		Summarizer: SummarizerConfig{
			Provider: "openai",
			ChatGPT: ChatGPTConfig{
				Endpoint: "https://api.openai.com/v1/chat/completions",
				Model:    "gpt-4o-mini",
			},
			Vertex:           VertexConfig{Region: "us-central1", Model: "gemini-1.5-pro"},
			SystemPrompt:     "You analyze regulatory filings for professionals tracking proceedings.",
			Timeout:          60 * time.Second,
			TextBudget:       12000,
			BreakerThreshold: 5,
			BreakerCooldown:  5 * time.Minute,
			Workers:          2,
			DispatchDelay:    time.Second,
		},
		Notifications: NotificationConfig{
			Email: EmailConfig{
				Provider: "sendgrid",
				FromName: "DocketWatch",
				SMTP:     SMTPConfig{Port: 587},
			},
			DailyHour:                 13,
			WeeklyDay:                 "monday",
			WeeklyHour:                9,
			DrainPageSize:             100,
			StaleClaimAfter:           30 * time.Minute,
			MaxPerRun:                 500,
			MaxDocketsPerRecipient:    25,
			MaxFilingsPerNotification: 20,
			SeedBatch:                 50,
			SeedFilings:               5,
			FreeSummaryChars:          160,
			UpgradeURL:                "https://docketwatch.example.org/upgrade",
		},
		Redis:   RedisConfig{LockTTL: 10 * time.Minute},
		Admin:   AdminConfig{Addr: ":8080"},
		Tracing: TracingConfig{ServiceName: "docketwatch"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
