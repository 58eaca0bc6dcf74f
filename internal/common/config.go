package common

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Logging   LoggingConfig   `toml:"logging"`
	Identity  IdentityConfig  `toml:"identity"`
	Risk      RiskConfig      `toml:"risk"`
	Drawdown  DrawdownConfig  `toml:"drawdown"`
	Valuation ValuationConfig `toml:"valuation"`
	Quality   QualityConfig   `toml:"quality"`
	Overlay   OverlayConfig   `toml:"overlay"`
	Profile   ProfileConfig   `toml:"profile"`
	EODHD     EODHDConfig     `toml:"eodhd"`
	Watch     WatchConfig     `toml:"watch"`
	Server    ServerConfig    `toml:"server"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Reports   ReportsConfig   `toml:"reports"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
	Badger BadgerConfig `toml:"badger"`
}

// SQLiteConfig configures the relational store holding prices, fundamentals,
// drawdown state and snapshots.
type SQLiteConfig struct {
	Path         string `toml:"path" validate:"required"`
	BusyTimeout  int    `toml:"busy_timeout_ms" validate:"gte=0"`
	WALMode      bool   `toml:"wal_mode"`
	QueryTimeout string `toml:"query_timeout"` // e.g. "10s"; applied to every store call
}

// BadgerConfig represents the dashboard cache location
type BadgerConfig struct {
	Enabled        bool   `toml:"enabled"`
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	Dir        string   `toml:"dir"`         // file output directory, default logs/ beside the binary
	TimeFormat string   `toml:"time_format"` // default "15:04:05"
}

// IdentityConfig controls symbol resolution strictness and the HK ETF code ranges.
type IdentityConfig struct {
	StrictAmbiguous bool     `toml:"strict_ambiguous"`
	StrictUnknown   bool     `toml:"strict_unknown"`
	HKETFRanges     [][]int  `toml:"hk_etf_ranges"` // inclusive [from, to] pairs of numeric codes
	ProviderSources []string `toml:"provider_sources"`
}

type RiskConfig struct {
	MinBars          int     `toml:"min_bars" validate:"gte=2"`
	WindowYears      int     `toml:"window_years" validate:"gte=1"`
	HighVolatility   float64 `toml:"high_volatility"`
	LowVolatility    float64 `toml:"low_volatility"`
	HighDrawdown     float64 `toml:"high_drawdown"`
	LowDrawdown      float64 `toml:"low_drawdown"`
	TradingDaysYear  int     `toml:"trading_days_year" validate:"gte=1"`
	BackfillMinRows  int     `toml:"backfill_min_rows" validate:"gte=1"`
	BackfillLookback int     `toml:"backfill_lookback_days" validate:"gte=1"`
}

// DrawdownConfig holds the depth bands (as positive fractions) separating D0..D6
// and the hysteresis windows.
type DrawdownConfig struct {
	Bands           []float64 `toml:"bands" validate:"len=6"`
	EnterDays       int       `toml:"enter_days" validate:"gte=1"`
	ExitDays        int       `toml:"exit_days" validate:"gte=1"`
	ReboundRecovery float64   `toml:"rebound_recovery"`
}

type ValuationConfig struct {
	MinHistory         int      `toml:"min_history" validate:"gte=1"`
	UndervaluedMax     float64  `toml:"undervalued_max"`
	FairMax            float64  `toml:"fair_max"`
	OvervaluedMax      float64  `toml:"overvalued_max"`
	PBKeywords         []string `toml:"pb_keywords"`
	StaticPEDivergence float64  `toml:"static_pe_divergence"`
	KillMargin         float64  `toml:"kill_margin"`
	TrapLowROE         float64  `toml:"trap_low_roe"`
	TrapHighLeverage   float64  `toml:"trap_high_leverage"`
	TrapHighYield      float64  `toml:"trap_high_yield"`
	TrapDeclinePeriods int      `toml:"trap_decline_periods" validate:"gte=2"`
}

// QualityConfig carries flag weights keyed by flag name and the level cut-offs
// on the normalised score in [-1, 1].
type QualityConfig struct {
	Weights          map[string]float64 `toml:"weights"`
	StrongMin        float64            `toml:"strong_min"`
	ModerateMin      float64            `toml:"moderate_min"`
	CyclicalSectors  []string           `toml:"cyclical_sectors"`
	RegulatedSectors []string           `toml:"regulated_sectors"`
	HistoryPeriods   int                `toml:"history_periods" validate:"gte=2"`
}

type OverlayConfig struct {
	DefaultScheme      string            `toml:"default_scheme"`
	MarketIndex        map[string]string `toml:"market_index"`
	GrowthProxy        map[string]string `toml:"growth_proxy"`
	ValueProxy         map[string]string `toml:"value_proxy"`
	RSLookback         int               `toml:"rs_lookback" validate:"gte=1"`
	RSWeak             float64           `toml:"rs_weak"`
	RSStrong           float64           `toml:"rs_strong"`
	CompressionSpread  float64           `toml:"compression_spread"`
	AmplificationMid   int               `toml:"amplification_mid"`
	AmplificationHigh  int               `toml:"amplification_high"`
	StressVolatility   float64           `toml:"stress_volatility"`
	ElevatedVolatility float64           `toml:"elevated_volatility"`
}

type ProfileConfig struct {
	Default          string  `toml:"default" validate:"oneof=CONSERVATIVE BALANCED AGGRESSIVE"`
	WarningVerbosity string  `toml:"warning_verbosity" validate:"omitempty,oneof=MINIMAL NORMAL DETAILED"`
	HighPosition     float64 `toml:"high_position"`
}

// EODHDConfig configures the optional market data fetcher
type EODHDConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Timeout   string `toml:"timeout"`    // e.g. "30s"
	RateLimit int    `toml:"rate_limit"` // requests per second
}

// WatchConfig drives `vera watch`: the watchlist is snapshotted serially on
// every cron tick, optionally after fetching new bars.
type WatchConfig struct {
	Schedule          string   `toml:"schedule"`
	Symbols           []string `toml:"symbols"`
	SaveToDB          bool     `toml:"save_to_db"`
	FetchNew          bool     `toml:"fetch_new"`
	FetchFundamentals bool     `toml:"fetch_fundamentals"`
	RunOnStart        bool     `toml:"run_on_start"`
}

// ReportsConfig locates template overrides and the default output directory
type ReportsConfig struct {
	TemplatesDir string `toml:"templates_dir"`
	OutputDir    string `toml:"output_dir"`
}

// ServerConfig controls the read-only HTTP API served by `vera watch` and `vera serve`
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port" validate:"gte=0,lte=65535"`
}

// Address returns host:port for net/http
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type MetricsConfig struct {
	// Enabled mounts /metrics on the HTTP server
	Enabled bool `toml:"enabled"`
}

// NewDefaultConfig creates a configuration with default values.
// Thresholds mirror the documented engine defaults; only user-facing
// settings need to appear in vera.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:         "./data/vera.db",
				BusyTimeout:  5000,
				WALMode:      true,
				QueryTimeout: "10s",
			},
			Badger: BadgerConfig{
				Enabled: false,
				Path:    "./data/cache",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Identity: IdentityConfig{
			StrictAmbiguous: true,
			StrictUnknown:   false,
			HKETFRanges:     [][]int{{2800, 2849}, {3000, 3199}, {7200, 7399}, {7500, 7599}, {9000, 9199}},
			ProviderSources: []string{"yahoo", "xueqiu", "eodhd"},
		},
		Risk: RiskConfig{
			MinBars:          120,
			WindowYears:      10,
			HighVolatility:   0.35,
			LowVolatility:    0.25,
			HighDrawdown:     0.25,
			LowDrawdown:      0.10,
			TradingDaysYear:  252,
			BackfillMinRows:  10,
			BackfillLookback: 3650,
		},
		Drawdown: DrawdownConfig{
			Bands:           []float64{0.10, 0.20, 0.30, 0.45, 0.60, 0.80},
			EnterDays:       3,
			ExitDays:        5,
			ReboundRecovery: 0.33,
		},
		Valuation: ValuationConfig{
			MinHistory:         120,
			UndervaluedMax:     20,
			FairMax:            60,
			OvervaluedMax:      80,
			PBKeywords:         []string{"bank", "insurance", "insurer", "4010", "4030", "银行", "保险"},
			StaticPEDivergence: 0.10,
			KillMargin:         0.10,
			TrapLowROE:         0.08,
			TrapHighLeverage:   1.5,
			TrapHighYield:      0.06,
			TrapDeclinePeriods: 3,
		},
		Quality: QualityConfig{
			Weights: map[string]float64{
				"revenue_stability":     1.0,
				"cyclicality":           0.75,
				"moat_proxy":            1.25,
				"balance_sheet":         1.25,
				"cashflow_coverage":     1.25,
				"leverage_risk":         1.0,
				"payout_consistency":    0.75,
				"dilution_risk":         0.75,
				"regulatory_dependence": 0.5,
			},
			StrongMin:        0.45,
			ModerateMin:      -0.10,
			CyclicalSectors:  []string{"energy", "materials", "industrials", "consumer discretionary"},
			RegulatedSectors: []string{"utilities", "financials", "communication services", "health care", "real estate"},
			HistoryPeriods:   8,
		},
		Overlay: OverlayConfig{
			DefaultScheme: "GICS",
			MarketIndex: map[string]string{
				"US":    "US:INDEX:^GSPC",
				"HK":    "HK:INDEX:HSI",
				"CN":    "CN:INDEX:000300",
				"WORLD": "US:INDEX:^GSPC",
			},
			GrowthProxy: map[string]string{
				"US": "US:ETF:QQQ",
				"HK": "HK:INDEX:HSTECH",
			},
			ValueProxy: map[string]string{
				"US": "US:ETF:IWD",
				"HK": "HK:ETF:03110",
			},
			RSLookback:         63,
			RSWeak:             -0.10,
			RSStrong:           0.10,
			CompressionSpread:  0.03,
			AmplificationMid:   2,
			AmplificationHigh:  4,
			StressVolatility:   0.30,
			ElevatedVolatility: 0.20,
		},
		Profile: ProfileConfig{
			Default:      "BALANCED",
			HighPosition: 0.6,
		},
		EODHD: EODHDConfig{
			BaseURL:   "https://eodhd.com/api",
			Timeout:   "30s",
			RateLimit: 10,
		},
		Watch: WatchConfig{
			Schedule: "30 18 * * 1-5",
			SaveToDB: true,
		},
		Server: ServerConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    9464,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Reports: ReportsConfig{
			TemplatesDir: "./templates",
			OutputDir:    "./reports",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier files; CLI flags are applied by the caller afterwards.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies VERA_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if path := os.Getenv("VERA_DB_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}
	if timeout := os.Getenv("VERA_DB_QUERY_TIMEOUT"); timeout != "" {
		config.Storage.SQLite.QueryTimeout = timeout
	}
	if cachePath := os.Getenv("VERA_CACHE_PATH"); cachePath != "" {
		config.Storage.Badger.Path = cachePath
		config.Storage.Badger.Enabled = true
	}

	if level := os.Getenv("VERA_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}
	if output := os.Getenv("VERA_LOG_OUTPUT"); output != "" {
		parts := strings.Split(output, ",")
		outputs := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				outputs = append(outputs, p)
			}
		}
		config.Logging.Output = outputs
	}
	if dir := os.Getenv("VERA_LOG_DIR"); dir != "" {
		config.Logging.Dir = dir
	}

	if strict := os.Getenv("VERA_STRICT_AMBIGUOUS"); strict != "" {
		if b, err := strconv.ParseBool(strict); err == nil {
			config.Identity.StrictAmbiguous = b
		}
	}
	if strict := os.Getenv("VERA_STRICT_UNKNOWN"); strict != "" {
		if b, err := strconv.ParseBool(strict); err == nil {
			config.Identity.StrictUnknown = b
		}
	}

	if profile := os.Getenv("VERA_RISK_PROFILE"); profile != "" {
		config.Profile.Default = strings.ToUpper(profile)
	}
	if verbosity := os.Getenv("VERA_WARNING_VERBOSITY"); verbosity != "" {
		config.Profile.WarningVerbosity = strings.ToUpper(verbosity)
	}

	// EODHD falls back to the provider's conventional variable name
	if key := os.Getenv("VERA_EODHD_API_KEY"); key != "" {
		config.EODHD.APIKey = key
	} else if key := os.Getenv("EODHD_API_KEY"); key != "" {
		config.EODHD.APIKey = key
	}

	if schedule := os.Getenv("VERA_WATCH_SCHEDULE"); schedule != "" {
		config.Watch.Schedule = schedule
	}
	if symbols := os.Getenv("VERA_WATCH_SYMBOLS"); symbols != "" {
		config.Watch.Symbols = nil
		for _, sym := range strings.Split(symbols, ",") {
			if sym = strings.TrimSpace(sym); sym != "" {
				config.Watch.Symbols = append(config.Watch.Symbols, sym)
			}
		}
	}
	if port := os.Getenv("VERA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
			config.Server.Enabled = true
		}
	}
	if host := os.Getenv("VERA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints and cross-field rules that tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	bands := c.Drawdown.Bands
	for i := 1; i < len(bands); i++ {
		if bands[i] <= bands[i-1] {
			return fmt.Errorf("invalid configuration: drawdown bands must be strictly increasing, got %v", bands)
		}
	}

	v := c.Valuation
	if !(v.UndervaluedMax < v.FairMax && v.FairMax < v.OvervaluedMax) {
		return fmt.Errorf("invalid configuration: valuation buckets must increase (%.0f/%.0f/%.0f)",
			v.UndervaluedMax, v.FairMax, v.OvervaluedMax)
	}

	if c.Quality.StrongMin <= c.Quality.ModerateMin {
		return fmt.Errorf("invalid configuration: quality strong_min must exceed moderate_min")
	}

	if c.Watch.Schedule != "" {
		if err := ValidateSchedule(c.Watch.Schedule); err != nil {
			return fmt.Errorf("invalid configuration: watch schedule: %w", err)
		}
	}

	return nil
}

// ValidateSchedule validates a five-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// ParseDuration parses a duration string, returning fallback when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
