package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/game"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orbital.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigMissingFileKeepsDefaults(t *testing.T) {
	base := DefaultAppConfig()
	got, err := loadConfigFromFile(filepath.Join(t.TempDir(), "nope.json"), base)
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if got.Addr != base.Addr || got.Tuning != base.Tuning {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestLoadConfigMergesOnlyPresentFields(t *testing.T) {
	path := writeConfig(t, `{
		"redis": {"addr": "redis:6379"},
		"tuning": {"scanRadiusM": 75, "chargeSeconds": 2.5},
		"resolver": {"strikeGraceSeconds": 120, "stopGraceSeconds": 5},
		"players": [{"id": "alice", "token": "t-alice", "username": "Alice"}]
	}`)

	got, err := loadConfigFromFile(path, DefaultAppConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Redis.Addr != "redis:6379" {
		t.Errorf("expected redis addr override, got %q", got.Redis.Addr)
	}
	if got.Tuning.ScanRadiusM != 75 {
		t.Errorf("expected scan radius 75, got %v", got.Tuning.ScanRadiusM)
	}
	if got.Tuning.ChargeDuration != 2500*time.Millisecond {
		t.Errorf("expected 2.5s charge, got %v", got.Tuning.ChargeDuration)
	}
	if got.Tuning.WeaponCooldown != game.WeaponCooldown {
		t.Errorf("absent field must keep default, got %v", got.Tuning.WeaponCooldown)
	}
	if got.StrikeGrace != 2*time.Minute {
		t.Errorf("expected strike grace 2m, got %v", got.StrikeGrace)
	}
	if got.Resolver.StopGrace != 5*time.Second {
		t.Errorf("expected stop grace 5s, got %v", got.Resolver.StopGrace)
	}
	if len(got.Players) != 1 || got.Players[0].Token != "t-alice" {
		t.Errorf("expected one dev player, got %+v", got.Players)
	}
}

func TestLoadConfigSanitizesTuning(t *testing.T) {
	path := writeConfig(t, `{"tuning": {"strikeRadiusM": -5, "shieldCooldownSeconds": 3, "shieldDurationSeconds": 20}}`)

	got, err := loadConfigFromFile(path, DefaultAppConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Tuning.StrikeRadiusM != game.StrikeRadiusM {
		t.Errorf("negative radius must fall back to default, got %v", got.Tuning.StrikeRadiusM)
	}
	if got.Tuning.ShieldCooldown < got.Tuning.ShieldDuration {
		t.Errorf("shield cooldown %v shorter than duration %v", got.Tuning.ShieldCooldown, got.Tuning.ShieldDuration)
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	if _, err := loadConfigFromFile(writeConfig(t, `{"tuning": `), DefaultAppConfig()); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := loadConfigFromFile(writeConfig(t, `{"players": [{"id": "x"}]}`), DefaultAppConfig()); err == nil {
		t.Fatal("expected error for player without token")
	}
}

func TestResolveConfigAppliesOverridesLast(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.ConfigPath = writeConfig(t, `{"addr": ":7000", "tuning": {"scanRadiusM": 75}}`)
	radius := 90.0
	charge := 4 * time.Second
	cfg.Overrides = TuningOverrides{ScanRadiusM: &radius, ChargeDuration: &charge}
	cfg.RedisAddrOverride = "10.0.0.1:6379"

	got, err := ResolveConfig(cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Addr != ":7000" {
		t.Errorf("expected file addr, got %q", got.Addr)
	}
	if got.Tuning.ScanRadiusM != 90 {
		t.Errorf("flag must win over file, got %v", got.Tuning.ScanRadiusM)
	}
	if got.Tuning.ChargeDuration != charge {
		t.Errorf("expected charge %v, got %v", charge, got.Tuning.ChargeDuration)
	}
	if got.Redis.Addr != "10.0.0.1:6379" {
		t.Errorf("expected redis flag override, got %q", got.Redis.Addr)
	}
}

func TestShippedConfigParses(t *testing.T) {
	got, err := loadConfigFromFile(filepath.Join("..", "..", "configs", "orbital.json"), DefaultAppConfig())
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}
	if len(got.Players) == 0 {
		t.Fatal("expected dev players in shipped config")
	}
	if got.Tuning != game.DefaultTuning() {
		t.Errorf("shipped tuning drifted from defaults: %+v", got.Tuning)
	}
}
