// =============================================
// File: internal/config/config.go
// =============================================
package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"
)

// Trading modes.
const (
	ModeSimulated = "simulated"
	ModeReal      = "real"
)

// ErrConfigInvalid marks a configuration that must prevent a session from
// starting. ErrCredentialInvalid marks credentials rejected by the exchange
// before the first tick.
var (
	ErrConfigInvalid     = errors.New("config invalid")
	ErrCredentialInvalid = errors.New("credential invalid")
)

// Session holds the immutable parameter set for one trading session.
// It is produced once at start and never mutated; a change requires a new
// session.
type Session struct {
	Mode string `mapstructure:"mode"`

	RealAPIKey        string `mapstructure:"real_api_key"`
	RealAPISecret     string `mapstructure:"real_api_secret"`
	ReadOnlyAPIKey    string `mapstructure:"readonly_api_key"`
	ReadOnlyAPISecret string `mapstructure:"readonly_api_secret"`

	BuyTriggerPercent        float64 `mapstructure:"buy_trigger_percent"`
	InitialWalletUSDT        float64 `mapstructure:"initial_wallet_usdt"`
	TradeAmountUSDT          float64 `mapstructure:"trade_amount_usdt"`
	SellProfitTriggerPercent float64 `mapstructure:"sell_profit_trigger_percent"`
	SellLossTriggerPercent   float64 `mapstructure:"sell_loss_trigger_percent"`
	MaxOpenPositions         int     `mapstructure:"max_open_positions"`

	QuoteAsset string `mapstructure:"quote_asset"`
	ScanLimit  int    `mapstructure:"scan_limit"`

	TickInterval  time.Duration `mapstructure:"-"`
	TickSeconds   int           `mapstructure:"tick_seconds"`
	CallTimeout   time.Duration `mapstructure:"-"`
	CallTimeoutMS int           `mapstructure:"call_timeout"`

	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`

	// MetricsAddr enables the Prometheus endpoint when non-empty,
	// e.g. ":9090".
	MetricsAddr string `mapstructure:"metrics_addr"`

	ExportDir    string `mapstructure:"export_dir"`
	ExportFormat string `mapstructure:"export_format"`
}

// Load reads a session configuration from the given file and validates it.
func Load(path string) (*Session, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Defaults mirror the historical single-account setup.
	v.SetDefault("mode", ModeSimulated)
	v.SetDefault("buy_trigger_percent", 6.0)
	v.SetDefault("initial_wallet_usdt", 200.0)
	v.SetDefault("trade_amount_usdt", 10.0)
	v.SetDefault("sell_profit_trigger_percent", 3.0)
	v.SetDefault("sell_loss_trigger_percent", -3.0)
	v.SetDefault("max_open_positions", 5)
	v.SetDefault("quote_asset", "USDT")
	v.SetDefault("scan_limit", 5)
	v.SetDefault("tick_seconds", 300)
	v.SetDefault("call_timeout", 10000)
	v.SetDefault("debug_logging", false)
	v.SetDefault("log_file", "trading_bot.log")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("export_dir", "exports")
	v.SetDefault("export_format", "csv")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	var s Session
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	s.TickInterval = time.Duration(s.TickSeconds) * time.Second
	s.CallTimeout = time.Duration(s.CallTimeoutMS) * time.Millisecond

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the parameter set. All violations wrap ErrConfigInvalid so
// the caller can refuse to start the session.
func (s *Session) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrConfigInvalid, fmt.Sprintf(format, args...))
	}

	switch s.Mode {
	case ModeSimulated, ModeReal:
	default:
		return fail("mode must be %q or %q, got %q", ModeSimulated, ModeReal, s.Mode)
	}

	for name, val := range map[string]float64{
		"buy_trigger_percent":         s.BuyTriggerPercent,
		"initial_wallet_usdt":         s.InitialWalletUSDT,
		"trade_amount_usdt":           s.TradeAmountUSDT,
		"sell_profit_trigger_percent": s.SellProfitTriggerPercent,
		"sell_loss_trigger_percent":   s.SellLossTriggerPercent,
	} {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fail("%s must be finite", name)
		}
	}

	if s.TradeAmountUSDT <= 0 {
		return fail("trade_amount_usdt must be positive")
	}
	if s.BuyTriggerPercent <= 0 {
		return fail("buy_trigger_percent must be positive")
	}
	if s.SellProfitTriggerPercent <= 0 {
		return fail("sell_profit_trigger_percent must be positive")
	}
	if s.SellLossTriggerPercent >= 0 {
		return fail("sell_loss_trigger_percent must be negative, e.g. -3.0")
	}
	if s.MaxOpenPositions < 1 {
		return fail("max_open_positions must be at least 1")
	}
	if s.Mode == ModeSimulated && s.InitialWalletUSDT < 0 {
		return fail("initial_wallet_usdt must be non-negative in simulated mode")
	}
	if s.ScanLimit < 1 {
		s.ScanLimit = 5
	}
	if s.TickInterval <= 0 {
		return fail("tick_seconds must be positive")
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = 10 * time.Second
	}

	switch s.ExportFormat {
	case "", "csv", "json":
	default:
		return fail("export_format must be csv or json, got %q", s.ExportFormat)
	}

	key, secret := s.ActiveCredentials()
	if key == "" || secret == "" {
		return fail("API key and secret are required for %s mode", s.Mode)
	}

	return nil
}

// ActiveCredentials returns the key pair matching the session mode: the
// trading keys in real mode, the read-only keys in simulated mode.
func (s *Session) ActiveCredentials() (key, secret string) {
	if s.Mode == ModeReal {
		return s.RealAPIKey, s.RealAPISecret
	}
	return s.ReadOnlyAPIKey, s.ReadOnlyAPISecret
}

// MaskKey truncates an API key for display so the full value never reaches
// logs or the UI.
func MaskKey(key string) string {
	const keep = 5
	if len(key) <= keep*2 {
		return "***"
	}
	return key[:keep] + "..." + key[len(key)-keep:]
}
