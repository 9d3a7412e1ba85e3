package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/B-Borecki/seu-injection-lab/internal/diag"
	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
)

const (
	minSamplePeriodMs = 5
	maxSamplePeriodMs = 10
)

type Config struct {
	Experiment ExperimentConfig
	Diag       DiagConfig
	SEU        SEUConfig
	Report     ReportConfig
	Alert      AlertConfig
	Tracing    TracingConfig
	Server     ServerConfig
	Log        LogConfig
}

type ExperimentConfig struct {
	Mode           model.ProtectMode `env:"PROTECT_MODE" envDefault:"baseline"`
	SamplePeriodMs int               `env:"SAMPLE_PERIOD_MS" envDefault:"10"`
	BaseFieldX     int32             `env:"BASE_FIELD_X" envDefault:"20000"`
	BaseFieldY     int32             `env:"BASE_FIELD_Y" envDefault:"-5000"`
	BaseFieldZ     int32             `env:"BASE_FIELD_Z" envDefault:"12000"`
	Gain           int32             `env:"CONTROL_GAIN" envDefault:"8"`
	CommandLimit   int32             `env:"COMMAND_LIMIT" envDefault:"2000"`
	SRLStepMax     int32             `env:"SRL_STEP_MAX" envDefault:"300"`
	MaxSeq         uint32            `env:"MAX_SEQ" envDefault:"20000"`
	StatWindow     uint32            `env:"STAT_WINDOW" envDefault:"1000"`
	QueueCapacity  int               `env:"QUEUE_CAPACITY" envDefault:"8"`
	ExitOnHalt     bool              `env:"EXIT_ON_HALT" envDefault:"false"`
}

// SamplePeriod returns the generator tick as a duration.
func (e ExperimentConfig) SamplePeriod() time.Duration {
	return time.Duration(e.SamplePeriodMs) * time.Millisecond
}

// BaseField returns the configured unperturbed field.
func (e ExperimentConfig) BaseField() [3]int32 {
	return [3]int32{e.BaseFieldX, e.BaseFieldY, e.BaseFieldZ}
}

type DiagConfig struct {
	// Output is "stdout", "stderr" or a file path.
	Output      string           `env:"DIAG_OUTPUT" envDefault:"stdout"`
	SampleLines diag.SampleLines `env:"DIAG_SAMPLE_LINES" envDefault:"all"`
	SampleRate  int              `env:"DIAG_SAMPLE_RATE" envDefault:"100"`
}

type SEUConfig struct {
	PlanFile string `env:"SEU_PLAN_FILE"`
}

type ReportConfig struct {
	// RedisURL selects the Redis report stream; empty keeps reports in memory.
	RedisURL string `env:"REDIS_URL"`
	Stream   string `env:"REPORT_STREAM" envDefault:"magtorq:reports"`
}

type AlertConfig struct {
	WebhookURL         string `env:"ALERT_WEBHOOK_URL"`
	SlackWebhookURL    string `env:"ALERT_SLACK_WEBHOOK_URL"`
	CooldownSec        int    `env:"ALERT_COOLDOWN_SEC" envDefault:"300"`
	SatWindowThreshold uint32 `env:"ALERT_SAT_WINDOW_THRESHOLD" envDefault:"0"`
}

// Cooldown returns the alert dedup window.
func (a AlertConfig) Cooldown() time.Duration {
	return time.Duration(a.CooldownSec) * time.Second
}

type TracingConfig struct {
	Enabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
	Endpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4317"`
	Insecure bool   `env:"TRACING_INSECURE" envDefault:"true"`
}

type ServerConfig struct {
	StatusPort int `env:"STATUS_PORT" envDefault:"8080"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	e := c.Experiment
	if !e.Mode.Valid() {
		return fmt.Errorf("PROTECT_MODE %d is not a valid mode", int(e.Mode))
	}
	if e.SamplePeriodMs < minSamplePeriodMs || e.SamplePeriodMs > maxSamplePeriodMs {
		return fmt.Errorf("SAMPLE_PERIOD_MS must be between %d and %d, got %d",
			minSamplePeriodMs, maxSamplePeriodMs, e.SamplePeriodMs)
	}
	if e.Gain <= 0 {
		return fmt.Errorf("CONTROL_GAIN must be positive, got %d", e.Gain)
	}
	if e.CommandLimit <= 0 {
		return fmt.Errorf("COMMAND_LIMIT must be positive, got %d", e.CommandLimit)
	}
	if e.SRLStepMax <= 0 {
		return fmt.Errorf("SRL_STEP_MAX must be positive, got %d", e.SRLStepMax)
	}
	if e.MaxSeq == 0 {
		return fmt.Errorf("MAX_SEQ must be positive")
	}
	if e.StatWindow == 0 {
		return fmt.Errorf("STAT_WINDOW must be positive")
	}
	if e.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", e.QueueCapacity)
	}
	if _, err := diag.ParseSampleLines(string(c.Diag.SampleLines)); err != nil {
		return fmt.Errorf("DIAG_SAMPLE_LINES: %w", err)
	}
	if c.Diag.SampleRate <= 0 {
		return fmt.Errorf("DIAG_SAMPLE_RATE must be positive, got %d", c.Diag.SampleRate)
	}
	if c.Diag.Output == "" {
		return fmt.Errorf("DIAG_OUTPUT is required")
	}
	if c.Report.Stream == "" {
		return fmt.Errorf("REPORT_STREAM is required")
	}
	if c.Alert.CooldownSec < 0 {
		return fmt.Errorf("ALERT_COOLDOWN_SEC must not be negative")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("TRACING_ENDPOINT is required when tracing is enabled")
	}
	if c.Server.StatusPort < 0 || c.Server.StatusPort > 65535 {
		return fmt.Errorf("STATUS_PORT %d out of range", c.Server.StatusPort)
	}
	return nil
}
