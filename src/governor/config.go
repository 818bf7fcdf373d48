package governor

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Limit is one broker's admission budget: at most MaxCalls within any rolling
// Window. Values are kept conservative, below each vendor's published
// ceiling, so the governor trips before the vendor does.
type Limit struct {
	MaxCalls int           `yaml:"max_calls" validate:"required,gt=0"`
	Window   time.Duration `yaml:"window" validate:"required,gt=0"`
}

type Config struct {
	Default Limit            `yaml:"default" validate:"required"`
	Brokers map[string]Limit `yaml:"brokers" validate:"dive"`
}

// DefaultConfig mirrors the vendors' published limits with headroom. Binance
// allows 1,200 request weight/min; TD Ameritrade allows 120 calls/min.
func DefaultConfig() *Config {
	return &Config{
		Default: Limit{MaxCalls: 60, Window: time.Minute},
		Brokers: map[string]Limit{
			"binance":    {MaxCalls: 600, Window: time.Minute},
			"ameritrade": {MaxCalls: 100, Window: time.Minute},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("governor.LoadConfig: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("governor.LoadConfig: failed to parse %s: %w", path, err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("governor.LoadConfig: invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) limitFor(brokerKey string) Limit {
	if limit, ok := c.Brokers[brokerKey]; ok {
		return limit
	}

	return c.Default
}
