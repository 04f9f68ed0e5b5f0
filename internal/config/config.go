package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"crm-timeentry/internal/domain"
)

// FileEnv names the environment variable holding an optional TOML file.
// Values from the file are applied first; environment variables win.
const FileEnv = "CRM_TIMEENTRY_CONFIG"

// Config holds environment-driven configuration.
type Config struct {
	CRM struct {
		BaseURL      string        `envconfig:"BASE_URL" toml:"base_url"` // e.g., https://org.crm4.dynamics.com
		ClientID     string        `envconfig:"CLIENT_ID" toml:"client_id"`
		ClientSecret string        `envconfig:"CLIENT_SECRET" toml:"client_secret"`
		TenantID     string        `envconfig:"TENANT_ID" toml:"tenant_id"`
		Resource     string        `envconfig:"RESOURCE" toml:"resource"` // default: BaseURL
		AuthorityURL string        `envconfig:"AUTHORITY_URL" toml:"authority_url"`
		Timeout      time.Duration `envconfig:"TIMEOUT" toml:"timeout"`
	} `envconfig:"CRM" toml:"crm"`
	Validation struct {
		MaxDailyHours        float64 `envconfig:"MAX_DAILY_HOURS" toml:"max_daily_hours"`
		MaxPastDays          int     `envconfig:"MAX_PAST_DAYS" toml:"max_past_days"`
		MinDescriptionLength int     `envconfig:"MIN_DESCRIPTION_LENGTH" toml:"min_description_length"`
		WeekendWarning       bool    `envconfig:"WEEKEND_WARNING" toml:"weekend_warning"`
	} `envconfig:"VALIDATION" toml:"validation"`
	UI struct {
		DefaultWorkLocation int  `envconfig:"DEFAULT_WORK_LOCATION" toml:"default_work_location"`
		DefaultEntryType    int  `envconfig:"DEFAULT_ENTRY_TYPE" toml:"default_entry_type"`
		RealtimeValidation  bool `envconfig:"REALTIME_VALIDATION" toml:"realtime_validation"`
	} `envconfig:"UI" toml:"ui"`
	MySQL struct {
		DSN string `envconfig:"DSN" toml:"dsn"` // empty keeps records in memory
	} `envconfig:"MYSQL" toml:"mysql"`
	HTTP struct {
		Addr      string `envconfig:"ADDR" toml:"addr"`
		RateLimit int    `envconfig:"RATE_LIMIT" toml:"rate_limit"` // requests per minute per client
	} `envconfig:"HTTP" toml:"http"`
	Entry struct {
		Timezone string `envconfig:"TZ" toml:"timezone"` // e.g., Local (default), UTC, Europe/Istanbul
	} `envconfig:"ENTRY" toml:"entry"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var cfg Config
	cfg.CRM.AuthorityURL = "https://login.microsoftonline.com"
	cfg.CRM.Timeout = 30 * time.Second
	cfg.Validation.MaxDailyHours = 12
	cfg.Validation.MaxPastDays = 30
	cfg.Validation.MinDescriptionLength = 10
	cfg.Validation.WeekendWarning = true
	cfg.UI.DefaultWorkLocation = int(domain.LocationOffice)
	cfg.UI.DefaultEntryType = int(domain.TypeWork)
	cfg.UI.RealtimeValidation = true
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.RateLimit = 60
	cfg.Entry.Timezone = "Local"
	return cfg
}

// Load reads configuration from the optional TOML file and environment variables.
// It does not require CRM credentials; call Validate before talking to the CRM.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.CRM.Resource == "" {
		cfg.CRM.Resource = cfg.CRM.BaseURL
	}
	return cfg, nil
}

// Validate reports the first missing or malformed setting.
func (c Config) Validate() error {
	switch {
	case c.CRM.BaseURL == "":
		return errors.New("CRM_BASE_URL is required")
	case c.CRM.ClientID == "":
		return errors.New("CRM_CLIENT_ID is required")
	case c.CRM.ClientSecret == "":
		return errors.New("CRM_CLIENT_SECRET is required")
	case c.CRM.TenantID == "":
		return errors.New("CRM_TENANT_ID is required")
	case c.CRM.Timeout <= 0:
		return errors.New("CRM_TIMEOUT must be positive")
	case !domain.TimeEntryType(c.UI.DefaultEntryType).Valid():
		return fmt.Errorf("UI_DEFAULT_ENTRY_TYPE %d is not a known entry type", c.UI.DefaultEntryType)
	case !domain.WorkLocation(c.UI.DefaultWorkLocation).Valid():
		return fmt.Errorf("UI_DEFAULT_WORK_LOCATION %d is not a known work location", c.UI.DefaultWorkLocation)
	case c.HTTP.RateLimit <= 0:
		return errors.New("HTTP_RATE_LIMIT must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Entry.Timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Entry.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ENTRY_TZ %q: %w", c.Entry.Timezone, err)
	}
	return loc, nil
}
