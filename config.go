package wagate

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config carries the gateway's tunables. Defaults suit a single-instance
// deployment; every field can be overridden via environment.
type Config struct {
	// SessionDataDir is the root of per-tenant durable login data.
	SessionDataDir string `env:"WAGATE_SESSION_DIR,default=./data/sessions"`

	// MediaDir is where extracted inbound media is published.
	MediaDir string `env:"WAGATE_MEDIA_DIR,default=./public/media"`
	// MediaURL is the public URL prefix mapped onto MediaDir.
	MediaURL string `env:"WAGATE_MEDIA_URL,default=/media"`
	// MediaRetention is how long extracted media stays retrievable.
	MediaRetention time.Duration `env:"WAGATE_MEDIA_RETENTION,default=1h"`

	// ReadyBudget bounds unattended waits for a connected session.
	ReadyBudget time.Duration `env:"WAGATE_READY_BUDGET,default=15s"`
	// LoginBudget bounds interactive waits where a human is expected to be
	// scanning a login code.
	LoginBudget time.Duration `env:"WAGATE_LOGIN_BUDGET,default=4m"`

	// BulkDelay is the default pause between bulk sends.
	BulkDelay time.Duration `env:"WAGATE_BULK_DELAY,default=500ms"`
	// BulkBackgroundThreshold is the batch size above which bulk dispatch
	// detaches into the background.
	BulkBackgroundThreshold int `env:"WAGATE_BULK_BG_THRESHOLD,default=10"`

	// CountryCode is applied to bare local-mobile recipient numbers.
	CountryCode string `env:"WAGATE_COUNTRY_CODE,default=961"`
	// DomainSuffix is the messaging network's recipient address suffix.
	DomainSuffix string `env:"WAGATE_DOMAIN_SUFFIX,default=c.us"`
}

// LoadConfig populates Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config from environment: %w", err)
	}
	return cfg, nil
}
