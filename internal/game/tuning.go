package game

import "time"

// Tuning is the externally supplied balance configuration.
type Tuning struct {
	ScanRadiusM           float64
	ScanCooldown          time.Duration
	ScanPrecisionDecimals int
	WeaponCooldown        time.Duration
	MaxWeaponRangeM       float64
	StrikeRadiusM         float64
	ChargeDuration        time.Duration
	ShieldCooldown        time.Duration
	ShieldDuration        time.Duration
	EliminationPoints     int
}

// ResolverOptions controls the resolution engine's sweep and retry loop.
type ResolverOptions struct {
	SweepInterval time.Duration
	SweepGrace    time.Duration
	SweepBatch    int64
	RetryMin      time.Duration
	RetryMax      time.Duration
	// StopGrace bounds how long a claimed resolution keeps retrying once
	// the process is shutting down.
	StopGrace time.Duration
}

func DefaultTuning() Tuning {
	return SanitizeTuning(Tuning{
		ScanRadiusM:           ScanRadiusM,
		ScanCooldown:          ScanCooldown,
		ScanPrecisionDecimals: ScanPrecisionDecimals,
		WeaponCooldown:        WeaponCooldown,
		MaxWeaponRangeM:       MaxWeaponRangeM,
		StrikeRadiusM:         StrikeRadiusM,
		ChargeDuration:        ChargeDuration,
		ShieldCooldown:        ShieldCooldown,
		ShieldDuration:        ShieldDuration,
		EliminationPoints:     EliminationPoints,
	})
}

// SanitizeTuning replaces unusable values with defaults. Cooldowns are
// rounded up to whole milliseconds, the TTL granularity of the ledger.
func SanitizeTuning(t Tuning) Tuning {
	if !(t.ScanRadiusM > 0) {
		t.ScanRadiusM = ScanRadiusM
	}
	if !(t.ScanCooldown > 0) {
		t.ScanCooldown = ScanCooldown
	}
	if t.ScanPrecisionDecimals < 0 || t.ScanPrecisionDecimals > maxScanPrecision {
		t.ScanPrecisionDecimals = ScanPrecisionDecimals
	}
	if !(t.WeaponCooldown > 0) {
		t.WeaponCooldown = WeaponCooldown
	}
	if !(t.MaxWeaponRangeM > 0) {
		t.MaxWeaponRangeM = MaxWeaponRangeM
	}
	if !(t.StrikeRadiusM > 0) {
		t.StrikeRadiusM = StrikeRadiusM
	}
	if t.ChargeDuration < minChargeDuration {
		t.ChargeDuration = ChargeDuration
	}
	if !(t.ShieldDuration > 0) {
		t.ShieldDuration = ShieldDuration
	}
	if t.ShieldCooldown < t.ShieldDuration {
		t.ShieldCooldown = t.ShieldDuration
	}
	if t.EliminationPoints < 0 {
		t.EliminationPoints = 0
	}
	t.ScanCooldown = roundUpMillis(t.ScanCooldown)
	t.WeaponCooldown = roundUpMillis(t.WeaponCooldown)
	t.ShieldCooldown = roundUpMillis(t.ShieldCooldown)
	t.ShieldDuration = roundUpMillis(t.ShieldDuration)
	return t
}

func DefaultResolverOptions() ResolverOptions {
	return SanitizeResolverOptions(ResolverOptions{
		SweepInterval: SweepInterval,
		SweepGrace:    SweepGrace,
		SweepBatch:    SweepBatch,
		RetryMin:      ResolveRetryMin,
		RetryMax:      ResolveRetryMax,
		StopGrace:     ResolveStopGrace,
	})
}

func SanitizeResolverOptions(o ResolverOptions) ResolverOptions {
	if !(o.SweepInterval > 0) {
		o.SweepInterval = SweepInterval
	}
	if o.SweepGrace < 0 {
		o.SweepGrace = SweepGrace
	}
	if o.SweepBatch <= 0 {
		o.SweepBatch = SweepBatch
	}
	if !(o.RetryMin > 0) {
		o.RetryMin = ResolveRetryMin
	}
	if o.RetryMax < o.RetryMin {
		o.RetryMax = o.RetryMin
	}
	if !(o.StopGrace > 0) {
		o.StopGrace = ResolveStopGrace
	}
	return o
}

func roundUpMillis(d time.Duration) time.Duration {
	if r := d % minCooldownTTLUnit; r != 0 {
		d += minCooldownTTLUnit - r
	}
	return d
}
