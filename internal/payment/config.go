package payment

import (
	"fmt"
	"regexp"
	"time"

	"paygate/internal/common/api"
	"paygate/internal/common/money"
)

// Config holds the engine configuration. All knobs are environment-driven
// with conservative defaults.
type Config struct {
	MaxAmount              float64       `envconfig:"MAX_AMOUNT" default:"1000000" validate:"gt=0"`
	SupportedCurrencies    []string      `envconfig:"SUPPORTED_CURRENCIES" default:"USD,EUR,GBP,JPY" validate:"min=1"`
	AccountIDPattern       string        `envconfig:"ACCOUNT_ID_PATTERN" default:"^[A-Za-z0-9]{1,34}$" validate:"required"`
	MetadataMaxEntries     int           `envconfig:"METADATA_MAX_ENTRIES" default:"16" validate:"gte=0"`
	MetadataMaxValueLength int           `envconfig:"METADATA_MAX_VALUE_LENGTH" default:"256" validate:"gte=0"`
	SettlementTimeout      time.Duration `envconfig:"SETTLEMENT_TIMEOUT" default:"10s" validate:"gt=0"`
	SettlementMaxRetries   int           `envconfig:"SETTLEMENT_MAX_RETRIES" default:"3" validate:"gte=1"`
	RetryBackoff           time.Duration `envconfig:"RETRY_BACKOFF" default:"200ms" validate:"gte=0"`
}

// Validate checks the configuration for internal consistency. Supported
// currencies must be registered in the money package: the settlement wire
// format needs their minor-unit metadata.
func (c Config) Validate() error {
	if err := api.Validate.Struct(c); err != nil {
		return fmt.Errorf("payment config: %w", err)
	}
	if _, err := regexp.Compile(c.AccountIDPattern); err != nil {
		return fmt.Errorf("payment config: account id pattern: %w", err)
	}
	for _, cur := range c.SupportedCurrencies {
		if !money.Known(money.Currency(cur)) {
			return fmt.Errorf("payment config: currency %q is not registered, known currencies: %v", cur, money.Codes())
		}
	}
	return nil
}
