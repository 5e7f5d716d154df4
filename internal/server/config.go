package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/game"
	"github.com/Guneet-Singh-Kalra/orbital/internal/geo"
	"github.com/Guneet-Singh-Kalra/orbital/internal/store"
	"github.com/Guneet-Singh-Kalra/orbital/internal/wake"
)

// AppConfig is everything StartApp needs. Defaults come from
// DefaultAppConfig, then the JSON file, then flag overrides.
type AppConfig struct {
	Addr       string
	ConfigPath string
	Debug      bool

	Redis       store.Options
	Tuning      game.Tuning
	Resolver    game.ResolverOptions
	Wake        wake.Options
	StrikeGrace time.Duration

	NotifyWorkers int
	NotifyQueue   int

	Players   []DevPlayer
	Overrides TuningOverrides

	// Flag values applied over the config file when non-empty.
	AddrOverride      string
	RedisAddrOverride string
}

// DevPlayer seeds the static token table and the in-memory profile store.
type DevPlayer struct {
	ID                string      `json:"id"`
	Token             string      `json:"token"`
	Username          string      `json:"username"`
	LastKnownLocation *geo.LatLng `json:"lastKnownLocation,omitempty"`
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Addr:          ":6767",
		ConfigPath:    "configs/orbital.json",
		Redis:         store.DefaultOptions(),
		Tuning:        game.DefaultTuning(),
		Resolver:      game.DefaultResolverOptions(),
		Wake:          wake.DefaultOptions(),
		StrikeGrace:   10 * time.Minute,
		NotifyWorkers: 4,
		NotifyQueue:   1024,
	}
}

type tuningConfig struct {
	ScanRadiusM           *float64 `json:"scanRadiusM"`
	ScanCooldownSeconds   *float64 `json:"scanCooldownSeconds"`
	ScanPrecisionDecimals *int     `json:"scanPrecisionDecimals"`
	WeaponCooldownSeconds *float64 `json:"weaponCooldownSeconds"`
	MaxWeaponRangeM       *float64 `json:"maxWeaponRangeM"`
	StrikeRadiusM         *float64 `json:"strikeRadiusM"`
	ChargeSeconds         *float64 `json:"chargeSeconds"`
	ShieldCooldownSeconds *float64 `json:"shieldCooldownSeconds"`
	ShieldDurationSeconds *float64 `json:"shieldDurationSeconds"`
	EliminationPoints     *int     `json:"eliminationPoints"`
}

type resolverConfig struct {
	SweepIntervalSeconds *float64 `json:"sweepIntervalSeconds"`
	SweepGraceSeconds    *float64 `json:"sweepGraceSeconds"`
	SweepBatch           *int64   `json:"sweepBatch"`
	StopGraceSeconds     *float64 `json:"stopGraceSeconds"`
	StrikeGraceSeconds   *float64 `json:"strikeGraceSeconds"`
}

type wakeConfig struct {
	PollIntervalSeconds *float64 `json:"pollIntervalSeconds"`
	VisibilitySeconds   *float64 `json:"visibilitySeconds"`
	Concurrency         *int     `json:"concurrency"`
}

type redisConfig struct {
	Addr     *string `json:"addr"`
	Password *string `json:"password"`
	DB       *int    `json:"db"`
}

type notifyConfig struct {
	Workers *int `json:"workers"`
	Queue   *int `json:"queue"`
}

type fileConfig struct {
	Addr     *string         `json:"addr"`
	Redis    *redisConfig    `json:"redis"`
	Tuning   *tuningConfig   `json:"tuning"`
	Resolver *resolverConfig `json:"resolver"`
	Wake     *wakeConfig     `json:"wake"`
	Notify   *notifyConfig   `json:"notify"`
	Players  []DevPlayer     `json:"players"`
}

// TuningOverrides represents optional command-line overrides for tuning.
type TuningOverrides struct {
	ScanRadiusM     *float64
	ScanCooldown    *time.Duration
	WeaponCooldown  *time.Duration
	MaxWeaponRangeM *float64
	StrikeRadiusM   *float64
	ChargeDuration  *time.Duration
	ShieldCooldown  *time.Duration
	ShieldDuration  *time.Duration
}

func (o TuningOverrides) apply(base game.Tuning) game.Tuning {
	if o.ScanRadiusM != nil {
		base.ScanRadiusM = *o.ScanRadiusM
	}
	if o.ScanCooldown != nil {
		base.ScanCooldown = *o.ScanCooldown
	}
	if o.WeaponCooldown != nil {
		base.WeaponCooldown = *o.WeaponCooldown
	}
	if o.MaxWeaponRangeM != nil {
		base.MaxWeaponRangeM = *o.MaxWeaponRangeM
	}
	if o.StrikeRadiusM != nil {
		base.StrikeRadiusM = *o.StrikeRadiusM
	}
	if o.ChargeDuration != nil {
		base.ChargeDuration = *o.ChargeDuration
	}
	if o.ShieldCooldown != nil {
		base.ShieldCooldown = *o.ShieldCooldown
	}
	if o.ShieldDuration != nil {
		base.ShieldDuration = *o.ShieldDuration
	}
	return game.SanitizeTuning(base)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func mergeTuningConfig(base game.Tuning, cfg *tuningConfig) game.Tuning {
	if cfg == nil {
		return base
	}
	if cfg.ScanRadiusM != nil {
		base.ScanRadiusM = *cfg.ScanRadiusM
	}
	if cfg.ScanCooldownSeconds != nil {
		base.ScanCooldown = seconds(*cfg.ScanCooldownSeconds)
	}
	if cfg.ScanPrecisionDecimals != nil {
		base.ScanPrecisionDecimals = *cfg.ScanPrecisionDecimals
	}
	if cfg.WeaponCooldownSeconds != nil {
		base.WeaponCooldown = seconds(*cfg.WeaponCooldownSeconds)
	}
	if cfg.MaxWeaponRangeM != nil {
		base.MaxWeaponRangeM = *cfg.MaxWeaponRangeM
	}
	if cfg.StrikeRadiusM != nil {
		base.StrikeRadiusM = *cfg.StrikeRadiusM
	}
	if cfg.ChargeSeconds != nil {
		base.ChargeDuration = seconds(*cfg.ChargeSeconds)
	}
	if cfg.ShieldCooldownSeconds != nil {
		base.ShieldCooldown = seconds(*cfg.ShieldCooldownSeconds)
	}
	if cfg.ShieldDurationSeconds != nil {
		base.ShieldDuration = seconds(*cfg.ShieldDurationSeconds)
	}
	if cfg.EliminationPoints != nil {
		base.EliminationPoints = *cfg.EliminationPoints
	}
	return game.SanitizeTuning(base)
}

func mergeFileConfig(base AppConfig, cfg fileConfig) AppConfig {
	if cfg.Addr != nil && *cfg.Addr != "" {
		base.Addr = *cfg.Addr
	}
	if r := cfg.Redis; r != nil {
		if r.Addr != nil {
			base.Redis.Addr = *r.Addr
		}
		if r.Password != nil {
			base.Redis.Password = *r.Password
		}
		if r.DB != nil {
			base.Redis.DB = *r.DB
		}
	}
	base.Tuning = mergeTuningConfig(base.Tuning, cfg.Tuning)
	if r := cfg.Resolver; r != nil {
		if r.SweepIntervalSeconds != nil {
			base.Resolver.SweepInterval = seconds(*r.SweepIntervalSeconds)
		}
		if r.SweepGraceSeconds != nil {
			base.Resolver.SweepGrace = seconds(*r.SweepGraceSeconds)
		}
		if r.SweepBatch != nil {
			base.Resolver.SweepBatch = *r.SweepBatch
		}
		if r.StopGraceSeconds != nil {
			base.Resolver.StopGrace = seconds(*r.StopGraceSeconds)
		}
		if r.StrikeGraceSeconds != nil && *r.StrikeGraceSeconds > 0 {
			base.StrikeGrace = seconds(*r.StrikeGraceSeconds)
		}
		base.Resolver = game.SanitizeResolverOptions(base.Resolver)
	}
	if w := cfg.Wake; w != nil {
		if w.PollIntervalSeconds != nil {
			base.Wake.PollInterval = seconds(*w.PollIntervalSeconds)
		}
		if w.VisibilitySeconds != nil {
			base.Wake.Visibility = seconds(*w.VisibilitySeconds)
		}
		if w.Concurrency != nil {
			base.Wake.Concurrency = *w.Concurrency
		}
	}
	if n := cfg.Notify; n != nil {
		if n.Workers != nil && *n.Workers > 0 {
			base.NotifyWorkers = *n.Workers
		}
		if n.Queue != nil && *n.Queue > 0 {
			base.NotifyQueue = *n.Queue
		}
	}
	if len(cfg.Players) > 0 {
		base.Players = append([]DevPlayer(nil), cfg.Players...)
	}
	return base
}

// loadConfigFromFile merges path over base. A missing file is not an error.
func loadConfigFromFile(path string, base AppConfig) (AppConfig, error) {
	if path == "" {
		return base, nil
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("read config %q: %w", cleanPath, err)
	}
	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config %q: %w", cleanPath, err)
	}
	for i, p := range cfg.Players {
		if p.ID == "" || p.Token == "" {
			return base, fmt.Errorf("parse config %q: player %d needs id and token", cleanPath, i)
		}
	}
	return mergeFileConfig(base, cfg), nil
}

// ResolveConfig applies the config file and then the flag overrides.
func ResolveConfig(cfg AppConfig) (AppConfig, error) {
	loaded, err := loadConfigFromFile(cfg.ConfigPath, cfg)
	if err != nil {
		return cfg, err
	}
	if loaded.AddrOverride != "" {
		loaded.Addr = loaded.AddrOverride
	}
	if loaded.RedisAddrOverride != "" {
		loaded.Redis.Addr = loaded.RedisAddrOverride
	}
	loaded.Tuning = loaded.Overrides.apply(loaded.Tuning)
	return loaded, nil
}
