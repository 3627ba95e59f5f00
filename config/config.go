// Package config carga la configuración completa del motor SLOB: YAML +
// .env + overrides de entorno + defaults, en ese orden de prioridad.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del motor de trading.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Pattern PatternConfig `yaml:"pattern"`
	Risk    RiskConfig    `yaml:"risk"`
	Broker  BrokerConfig  `yaml:"broker"`
	Storage StorageConfig `yaml:"storage"`
	ML      MLConfig      `yaml:"ml"`
	Log     LogConfig     `yaml:"log"`
}

// SessionConfig controla el reloj de sesión. La fuente original alterna
// entre agrupar por medianoche UTC y por medianoche local; aquí la
// ventana de apertura es configurable, pero las sesiones se agrupan
// siempre por medianoche UTC (CalendarUTC no cambia eso).
type SessionConfig struct {
	Symbol             string `yaml:"symbol"`
	OpeningWindowStart string `yaml:"opening_window_start"` // "HH:MM" UTC
	OpeningWindowEnd   string `yaml:"opening_window_end"`   // "HH:MM" UTC
	SessionEnd         string `yaml:"session_end"`          // "HH:MM" UTC, flatten time for CancelRestingAtEOD
	Timezone           string `yaml:"timezone"`             // nombre IANA, informativo; los límites se calculan en UTC
	CalendarUTC        bool   `yaml:"calendar_utc"`         // no se lee: el motor y el backtest agrupan sesiones siempre por medianoche UTC
	CancelRestingAtEOD bool   `yaml:"cancel_resting_at_eod"`
}

// PatternConfig parametriza el pipeline de reconocimiento de patrones.
type PatternConfig struct {
	ATRPeriod            int     `yaml:"atr_period"`
	ATRLookback          int     `yaml:"atr_lookback"`
	ConsolMinDuration    int     `yaml:"consol_min_duration"`
	ConsolMaxDuration    int     `yaml:"consol_max_duration"`
	ConsolKMin           float64 `yaml:"consol_k_min"`
	ConsolKMax           float64 `yaml:"consol_k_max"`
	ConsolTrendThreshold float64 `yaml:"consol_trend_threshold"`
	ConsolTouchTolerance float64 `yaml:"consol_touch_tolerance"`
	NoWickLookback       int     `yaml:"nowick_lookback"`
	NoWickWickPercentile float64 `yaml:"nowick_wick_percentile"`
	NoWickBodyMinPct     float64 `yaml:"nowick_body_min_pct"`
	NoWickBodyMaxPct     float64 `yaml:"nowick_body_max_pct"`
	LiqLookback          int     `yaml:"liq_lookback"`
	LiqVolumeThreshold   float64 `yaml:"liq_volume_threshold"`
	LiqMinScore          float64 `yaml:"liq_min_score"`
	MaxSweepWindow       int     `yaml:"max_sweep_window"`
	MaxEntryWait         int     `yaml:"max_entry_wait"`
	MaxRetracementPoints float64 `yaml:"max_retracement_points"`
	StopBuffer           float64 `yaml:"stop_buffer"`
	SpikeClampMultiple   float64 `yaml:"spike_clamp_multiple"`
}

// RiskConfig parametriza el RiskManager.
type RiskConfig struct {
	InitialCapital    float64 `yaml:"initial_capital"`
	RiskPctPerTrade   float64 `yaml:"risk_pct_per_trade"` // el contrato deja abierta la elección 1%/2%, ver spec §9
	UseATRSizing      bool    `yaml:"use_atr_sizing"`
	UseHalfKelly      bool    `yaml:"use_half_kelly"`
	MinTradesForKelly int     `yaml:"min_trades_for_kelly"`
	ReduceThreshold   float64 `yaml:"reduce_threshold"`
	HardStop          float64 `yaml:"hard_stop"`
	PointValue        float64 `yaml:"point_value"` // $ por punto por contrato
}

// BrokerConfig controla la conexión al gateway del broker.
type BrokerConfig struct {
	Host                string        `yaml:"host"`
	Port                int           `yaml:"port"`
	ClientID            int           `yaml:"client_id"`
	Account             string        `yaml:"account"`
	Paper               bool          `yaml:"paper"`
	ReadOnly            bool          `yaml:"readonly"`
	HeartbeatEvery      time.Duration `yaml:"heartbeat_every"`
	MaxMissedBeats      int           `yaml:"max_missed_beats"`
	ReconnectCap        int           `yaml:"reconnect_cap"`
	ReconnectMaxDelay   time.Duration `yaml:"reconnect_max_delay"`
	MarginPctOfNotional float64       `yaml:"margin_pct_of_notional"`
}

// StorageConfig controla dónde se persiste el estado.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// MLConfig controla el filtro de probabilidad del clasificador.
type MLConfig struct {
	Enabled       bool    `yaml:"enabled"`
	ModelPath     string  `yaml:"model_path"`
	Threshold     float64 `yaml:"threshold"`
	OnlineUpdates bool    `yaml:"online_updates"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML, aplica un .env si
// existe, resuelve secretos, aplica overrides de entorno y completa
// defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	resolver := NewSecretsResolver()
	if err := applySecrets(&cfg, resolver); err != nil {
		return nil, fmt.Errorf("config.Load: resolve secrets: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return &cfg, nil
}

// OpeningWindow parsea los límites HH:MM configurados a offsets desde
// medianoche.
func (c *Config) OpeningWindow() (start, end time.Duration, err error) {
	start, err = parseClock(c.Session.OpeningWindowStart)
	if err != nil {
		return 0, 0, fmt.Errorf("opening_window_start: %w", err)
	}
	end, err = parseClock(c.Session.OpeningWindowEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("opening_window_end: %w", err)
	}
	return start, end, nil
}

// SessionEndOffset parses session_end (HH:MM UTC) to an offset from
// midnight — the flatten time EOD liquidation and resting-order
// cancellation apply at.
func (c *Config) SessionEndOffset() (time.Duration, error) {
	end, err := parseClock(c.Session.SessionEnd)
	if err != nil {
		return 0, fmt.Errorf("session_end: %w", err)
	}
	return end, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

func applySecrets(cfg *Config, r *SecretsResolver) error {
	account, err := r.Resolve("BROKER_ACCOUNT", "")
	if err != nil {
		return err
	}
	if account != "" {
		cfg.Broker.Account = account
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Session.OpeningWindowStart == "" {
		cfg.Session.OpeningWindowStart = "09:00"
	}
	if cfg.Session.OpeningWindowEnd == "" {
		cfg.Session.OpeningWindowEnd = "15:30"
	}
	if cfg.Session.SessionEnd == "" {
		cfg.Session.SessionEnd = "21:55"
	}
	if cfg.Session.Timezone == "" {
		cfg.Session.Timezone = "Europe/Stockholm"
	}

	if cfg.Pattern.ATRPeriod <= 0 {
		cfg.Pattern.ATRPeriod = 14
	}
	if cfg.Pattern.ATRLookback <= 0 {
		cfg.Pattern.ATRLookback = 30
	}
	if cfg.Pattern.ConsolMinDuration <= 0 {
		cfg.Pattern.ConsolMinDuration = 3
	}
	if cfg.Pattern.ConsolMaxDuration <= 0 {
		cfg.Pattern.ConsolMaxDuration = 25
	}
	if cfg.Pattern.ConsolKMin <= 0 {
		cfg.Pattern.ConsolKMin = 0.5
	}
	if cfg.Pattern.ConsolKMax <= 0 {
		cfg.Pattern.ConsolKMax = 2.0
	}
	if cfg.Pattern.ConsolTrendThreshold <= 0 {
		cfg.Pattern.ConsolTrendThreshold = 0.15
	}
	if cfg.Pattern.ConsolTouchTolerance <= 0 {
		cfg.Pattern.ConsolTouchTolerance = 2.0
	}
	if cfg.Pattern.NoWickLookback <= 0 {
		cfg.Pattern.NoWickLookback = 100
	}
	if cfg.Pattern.NoWickWickPercentile <= 0 {
		cfg.Pattern.NoWickWickPercentile = 10
	}
	if cfg.Pattern.NoWickBodyMinPct <= 0 {
		cfg.Pattern.NoWickBodyMinPct = 30
	}
	if cfg.Pattern.NoWickBodyMaxPct <= 0 {
		cfg.Pattern.NoWickBodyMaxPct = 70
	}
	if cfg.Pattern.LiqLookback <= 0 {
		cfg.Pattern.LiqLookback = 50
	}
	if cfg.Pattern.LiqVolumeThreshold <= 0 {
		cfg.Pattern.LiqVolumeThreshold = 1.5
	}
	if cfg.Pattern.LiqMinScore <= 0 {
		cfg.Pattern.LiqMinScore = 0.6
	}
	if cfg.Pattern.MaxSweepWindow <= 0 {
		cfg.Pattern.MaxSweepWindow = 40
	}
	if cfg.Pattern.MaxEntryWait <= 0 {
		cfg.Pattern.MaxEntryWait = 20
	}
	if cfg.Pattern.MaxRetracementPoints <= 0 {
		cfg.Pattern.MaxRetracementPoints = 15
	}
	if cfg.Pattern.StopBuffer <= 0 {
		cfg.Pattern.StopBuffer = 2.0
	}
	if cfg.Pattern.SpikeClampMultiple <= 0 {
		cfg.Pattern.SpikeClampMultiple = 2.0
	}

	if cfg.Risk.InitialCapital <= 0 {
		cfg.Risk.InitialCapital = 50000
	}
	if cfg.Risk.RiskPctPerTrade <= 0 {
		cfg.Risk.RiskPctPerTrade = 0.02
	}
	if cfg.Risk.MinTradesForKelly <= 0 {
		cfg.Risk.MinTradesForKelly = 10
	}
	if cfg.Risk.ReduceThreshold <= 0 {
		cfg.Risk.ReduceThreshold = 0.15
	}
	if cfg.Risk.HardStop <= 0 {
		cfg.Risk.HardStop = 0.20
	}
	if cfg.Risk.PointValue <= 0 {
		cfg.Risk.PointValue = 50 // ej. futuro de índice estilo ES
	}

	if cfg.Broker.Port <= 0 {
		cfg.Broker.Port = 7497
	}
	if cfg.Broker.HeartbeatEvery <= 0 {
		cfg.Broker.HeartbeatEvery = 10 * time.Second
	}
	if cfg.Broker.MaxMissedBeats <= 0 {
		cfg.Broker.MaxMissedBeats = 3
	}
	if cfg.Broker.ReconnectCap <= 0 {
		cfg.Broker.ReconnectCap = 10
	}
	if cfg.Broker.ReconnectMaxDelay <= 0 {
		cfg.Broker.ReconnectMaxDelay = 60 * time.Second
	}
	if cfg.Broker.MarginPctOfNotional <= 0 {
		cfg.Broker.MarginPctOfNotional = 0.20
	}
	if len(cfg.Broker.Account) >= 2 && cfg.Broker.Account[:2] == "DU" {
		cfg.Broker.Paper = true // cuentas "DU..." son paper por convención
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "slob.db"
	}

	if cfg.ML.Threshold <= 0 {
		cfg.ML.Threshold = 0.55
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func validate(cfg *Config) error {
	if cfg.Risk.HardStop <= cfg.Risk.ReduceThreshold {
		return fmt.Errorf("risk.hard_stop (%.2f) must exceed risk.reduce_threshold (%.2f)",
			cfg.Risk.HardStop, cfg.Risk.ReduceThreshold)
	}
	if cfg.Pattern.ConsolMaxDuration < cfg.Pattern.ConsolMinDuration {
		return fmt.Errorf("pattern.consol_max_duration must be >= consol_min_duration")
	}
	return nil
}
