package game

import "time"

// Placeholder tuning. Scan radius and cooldown come from the first playtest
// build; everything else is expected from configuration.
const (
	ScanRadiusM           = 50.0
	ScanCooldown          = 30 * time.Second
	ScanPrecisionDecimals = 3 // ~110 m grid for scan results
	WeaponCooldown        = 60 * time.Second
	MaxWeaponRangeM       = 2000.0
	StrikeRadiusM         = 100.0
	ChargeDuration        = 10 * time.Second
	ShieldCooldown        = 120 * time.Second
	ShieldDuration        = 15 * time.Second
	EliminationPoints     = 10
)

// Resolution engine defaults.
const (
	SweepInterval      = 15 * time.Second
	SweepGrace         = 30 * time.Second
	SweepBatch         = 100
	ResolveRetryMin    = 100 * time.Millisecond
	ResolveRetryMax    = 10 * time.Second
	ResolveStopGrace   = 20 * time.Second
	maxScanPrecision   = 8
	minChargeDuration  = time.Second
	minCooldownTTLUnit = time.Millisecond
)
