package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/flashloan"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	// An empty DatabaseURL runs the node on the in-memory store.
	DatabaseURL        string `env:"DATABASE_URL"`
	DBMaxOpenConns     int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int    `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int    `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int    `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
	DBConnectAttempts  int    `env:"DB_CONNECT_ATTEMPTS" envDefault:"10"`
	DBAutoMigrate      bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	KafkaBrokers       []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic         string        `env:"KAFKA_TOPIC" envDefault:"transaction.committed"`
	EventFlushInterval time.Duration `env:"EVENT_FLUSH_INTERVAL" envDefault:"1s"`
	EventBufferSize    int           `env:"EVENT_BUFFER_SIZE" envDefault:"10000"`

	OperatorJWTSecret string `env:"OPERATOR_JWT_SECRET,required,notEmpty"`

	RentLamportsPerByteYear uint64 `env:"RENT_LAMPORTS_PER_BYTE_YEAR" envDefault:"3480"`
	RentExemptionYears      uint64 `env:"RENT_EXEMPTION_YEARS" envDefault:"2"`

	FlashLoanRepayPolicy string `env:"FLASHLOAN_REPAY_POLICY" envDefault:"deferred"`

	// Base58 overrides of facility identities. Empty keeps the default.
	FlashLoanFacility string `env:"FLASHLOAN_FACILITY_ID"`
	VaultFacility     string `env:"VAULT_FACILITY_ID"`
	EscrowFacility    string `env:"ESCROW_FACILITY_ID"`
	ExchangeFacility  string `env:"EXCHANGE_FACILITY_ID"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if _, err := cfg.RepayPolicy(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if _, err := cfg.Facilities(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Rent() runtime.Rent {
	return runtime.Rent{
		LamportsPerByteYear: c.RentLamportsPerByteYear,
		ExemptionYears:      c.RentExemptionYears,
	}
}

func (c *Config) RepayPolicy() (flashloan.Policy, error) {
	return flashloan.ParsePolicy(c.FlashLoanRepayPolicy)
}

// Facilities resolves the identities the node registers its facilities
// under. The system, token and associated-account identities are fixed.
func (c *Config) Facilities() (domain.Facilities, error) {
	f := domain.DefaultFacilities()
	for _, o := range []struct {
		name  string
		value string
		dst   *domain.Address
	}{
		{"FLASHLOAN_FACILITY_ID", c.FlashLoanFacility, &f.FlashLoan},
		{"VAULT_FACILITY_ID", c.VaultFacility, &f.Vault},
		{"ESCROW_FACILITY_ID", c.EscrowFacility, &f.Escrow},
		{"EXCHANGE_FACILITY_ID", c.ExchangeFacility, &f.Exchange},
	} {
		if o.value == "" {
			continue
		}
		addr, err := domain.ParseAddress(o.value)
		if err != nil {
			return domain.Facilities{}, fmt.Errorf("%s: %w", o.name, err)
		}
		*o.dst = addr
	}

	seen := map[domain.Address]string{}
	for name, id := range map[string]domain.Address{
		"system": f.System, "token": f.Token, "extended token": f.ExtendedToken,
		"associated token": f.AssociatedToken, "flash loan": f.FlashLoan,
		"vault": f.Vault, "escrow": f.Escrow, "exchange": f.Exchange,
	} {
		if other, dup := seen[id]; dup {
			return domain.Facilities{}, fmt.Errorf("%w: %s and %s share %s", domain.ErrInvalidAddress, name, other, id)
		}
		seen[id] = name
	}
	return f, nil
}
