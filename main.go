package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/server"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", "", "address to listen on (default :6767 or the config file value)")
	configPath := flag.String("config", "configs/orbital.json", "path to the JSON configuration")
	redisAddr := flag.String("redis", "", "redis address, overrides the config file")
	debug := flag.Bool("debug", false, "development logging")
	scanRadius := flag.Float64("scan-radius", math.NaN(), "override scan radius in meters")
	strikeRadius := flag.Float64("strike-radius", math.NaN(), "override strike radius in meters")
	weaponRange := flag.Float64("weapon-range", math.NaN(), "override maximum weapon range in meters")
	scanCooldown := flag.Duration("scan-cooldown", 0, "override scan cooldown (e.g. 30s)")
	weaponCooldown := flag.Duration("weapon-cooldown", 0, "override weapon cooldown")
	charge := flag.Duration("charge", 0, "override strike charge duration")
	shieldCooldown := flag.Duration("shield-cooldown", 0, "override shield cooldown")
	shieldDuration := flag.Duration("shield-duration", 0, "override shield duration")
	flag.Parse()

	log, err := server.NewLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := server.DefaultAppConfig()
	cfg.ConfigPath = *configPath
	cfg.Debug = *debug

	var overrides server.TuningOverrides

	if !math.IsNaN(*scanRadius) {
		val := *scanRadius
		overrides.ScanRadiusM = &val
	}
	if !math.IsNaN(*strikeRadius) {
		val := *strikeRadius
		overrides.StrikeRadiusM = &val
	}
	if !math.IsNaN(*weaponRange) {
		val := *weaponRange
		overrides.MaxWeaponRangeM = &val
	}
	overrides.ScanCooldown = durationOverride(*scanCooldown)
	overrides.WeaponCooldown = durationOverride(*weaponCooldown)
	overrides.ChargeDuration = durationOverride(*charge)
	overrides.ShieldCooldown = durationOverride(*shieldCooldown)
	overrides.ShieldDuration = durationOverride(*shieldDuration)

	cfg.Overrides = overrides
	cfg.AddrOverride = *addr
	cfg.RedisAddrOverride = *redisAddr

	if err := server.StartApp(cfg, log); err != nil {
		log.Error("exit", zap.Error(err))
		os.Exit(1)
	}
}

func durationOverride(d time.Duration) *time.Duration {
	if d <= 0 {
		return nil
	}
	return &d
}
