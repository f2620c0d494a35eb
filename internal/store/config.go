package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	ModeLive   = "LIVE"
	ModeDryRun = "DRY_RUN"
)

type Config struct {
	Mode string `yaml:"mode"`

	Session struct {
		TTL            time.Duration `yaml:"ttl"`
		CodeLength     int           `yaml:"code_length"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
	} `yaml:"session"`

	Quote struct {
		Instrument string        `yaml:"instrument"`
		Token      uint32        `yaml:"token"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"quote"`

	Strangle struct {
		Underlying    string  `yaml:"underlying"`
		Exchange      string  `yaml:"exchange"`
		StrikeStep    float64 `yaml:"strike_step"`
		OTMOffset     float64 `yaml:"otm_offset"`
		Quantity      int     `yaml:"quantity"`
		Product       string  `yaml:"product"`
		ExpiryWeekday string  `yaml:"expiry_weekday"`
	} `yaml:"strangle"`

	Stop struct {
		Multiplier     float64 `yaml:"multiplier"`
		SlippageBuffer float64 `yaml:"slippage_buffer"`
		TickSize       float64 `yaml:"tick_size"`
	} `yaml:"stop"`

	Fill struct {
		PollAttempts  int           `yaml:"poll_attempts"`
		PollInterval  time.Duration `yaml:"poll_interval"`
		FallbackPrice float64       `yaml:"fallback_price"`
	} `yaml:"fill"`

	Broker struct {
		RequestTimeout time.Duration `yaml:"request_timeout"`
		LoginBaseURL   string        `yaml:"login_base_url"`
		APIBaseURL     string        `yaml:"api_base_url"`
	} `yaml:"broker"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
}

var weekdays = map[string]time.Weekday{
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
}

// ExpiryWeekday returns the configured weekly expiry day.
func (c *Config) ExpiryWeekday() time.Weekday {
	if wd, ok := weekdays[strings.ToUpper(c.Strangle.ExpiryWeekday)]; ok {
		return wd
	}
	return time.Tuesday
}

func (c *Config) DryRun() bool {
	return c.Mode == ModeDryRun
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs error
	if c.Mode != ModeDryRun && c.Mode != ModeLive {
		errs = multierr.Append(errs, fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode))
	}
	if c.Session.TTL <= 0 {
		errs = multierr.Append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Session.CodeLength <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("session.code_length must be positive, got %d", c.Session.CodeLength))
	}
	if c.Quote.Instrument == "" || c.Quote.Token == 0 {
		errs = multierr.Append(errs, errors.New("quote.instrument and quote.token are required"))
	}
	if c.Quote.Timeout <= 0 {
		errs = multierr.Append(errs, errors.New("quote.timeout must be positive"))
	}
	if c.Strangle.Underlying == "" {
		errs = multierr.Append(errs, errors.New("strangle.underlying cannot be empty"))
	}
	if c.Strangle.StrikeStep <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("strangle.strike_step must be positive, got %.2f", c.Strangle.StrikeStep))
	}
	if c.Strangle.OTMOffset <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("strangle.otm_offset must be positive, got %.2f", c.Strangle.OTMOffset))
	}
	if c.Strangle.Quantity <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("strangle.quantity must be positive, got %d", c.Strangle.Quantity))
	}
	if _, ok := weekdays[strings.ToUpper(c.Strangle.ExpiryWeekday)]; !ok {
		errs = multierr.Append(errs, fmt.Errorf("strangle.expiry_weekday '%s' is not a weekday name", c.Strangle.ExpiryWeekday))
	}
	if c.Stop.Multiplier <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("stop.multiplier must be positive, got %.2f", c.Stop.Multiplier))
	}
	if c.Stop.SlippageBuffer < 0 {
		errs = multierr.Append(errs, fmt.Errorf("stop.slippage_buffer cannot be negative, got %.2f", c.Stop.SlippageBuffer))
	}
	if c.Stop.TickSize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("stop.tick_size must be positive, got %.2f", c.Stop.TickSize))
	}
	if c.Fill.PollAttempts <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("fill.poll_attempts must be positive, got %d", c.Fill.PollAttempts))
	}
	if c.Fill.FallbackPrice < 0 {
		errs = multierr.Append(errs, fmt.Errorf("fill.fallback_price cannot be negative, got %.2f", c.Fill.FallbackPrice))
	}
	return errs
}

const defaultOTMOffset = 200

// ApplyDefaults fills every unset knob except strangle.otm_offset, whose
// default is seeded before decoding so an explicit zero reaches Validate.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDryRun
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 8 * time.Hour
	}
	if c.Session.CodeLength == 0 {
		c.Session.CodeLength = 6
	}
	if c.Session.ConnectTimeout == 0 {
		c.Session.ConnectTimeout = 10 * time.Second
	}
	if c.Quote.Instrument == "" {
		c.Quote.Instrument = "NSE:NIFTY 50"
	}
	if c.Quote.Token == 0 {
		c.Quote.Token = 256265
	}
	if c.Quote.Timeout == 0 {
		c.Quote.Timeout = 5 * time.Second
	}
	if c.Strangle.Underlying == "" {
		c.Strangle.Underlying = "NIFTY"
	}
	if c.Strangle.Exchange == "" {
		c.Strangle.Exchange = "NFO"
	}
	if c.Strangle.StrikeStep == 0 {
		c.Strangle.StrikeStep = 50
	}
	if c.Strangle.Quantity == 0 {
		c.Strangle.Quantity = 75
	}
	if c.Strangle.Product == "" {
		c.Strangle.Product = "NRML"
	}
	if c.Strangle.ExpiryWeekday == "" {
		c.Strangle.ExpiryWeekday = "TUESDAY"
	}
	if c.Stop.Multiplier == 0 {
		c.Stop.Multiplier = 1.25
	}
	if c.Stop.TickSize == 0 {
		c.Stop.TickSize = 0.05
	}
	if c.Fill.PollAttempts == 0 {
		c.Fill.PollAttempts = 5
	}
	if c.Fill.PollInterval == 0 {
		c.Fill.PollInterval = 500 * time.Millisecond
	}
	if c.Broker.RequestTimeout == 0 {
		c.Broker.RequestTimeout = 7 * time.Second
	}
	if c.Broker.LoginBaseURL == "" {
		c.Broker.LoginBaseURL = "https://kite.zerodha.com"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
}

func ParseConfig(b []byte) (*Config, error) {
	var c Config
	c.Strangle.OTMOffset = defaultOTMOffset
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// Secrets are read from the environment, never from config.yaml.
type Secrets struct {
	APIKey        string
	APISecret     string
	UserID        string
	Password      string
	TelegramToken string
	TelegramChat  string
	WebhookSecret string
}

func LoadSecrets() (Secrets, error) {
	s := Secrets{
		APIKey:        os.Getenv("KITE_API_KEY"),
		APISecret:     os.Getenv("KITE_API_SECRET"),
		UserID:        os.Getenv("KITE_USER_ID"),
		Password:      os.Getenv("KITE_PASSWORD"),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChat:  os.Getenv("TELEGRAM_CHAT_ID"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	}
	var errs error
	for name, v := range map[string]string{
		"KITE_API_KEY":    s.APIKey,
		"KITE_API_SECRET": s.APISecret,
		"KITE_USER_ID":    s.UserID,
		"KITE_PASSWORD":   s.Password,
	} {
		if v == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s must be set", name))
		}
	}
	return s, errs
}
