package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.StoreDir == "" {
		t.Fatal("expected non-empty default store dir")
	}
	if cfg.PowerMode != PowerNormal {
		t.Fatalf("expected default power mode %q, got %q", PowerNormal, cfg.PowerMode)
	}
	if cfg.MetricsPort == 0 {
		t.Fatal("expected a non-zero default metrics port")
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
store_dir: /tmp/irrigctl
power_mode: energy_saving
wireless_enabled: false
metrics_port: 9999
log:
  level: debug
  format: text
  outputs:
    - type: console
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDir != "/tmp/irrigctl" {
		t.Errorf("store_dir = %q, want /tmp/irrigctl", cfg.StoreDir)
	}
	if cfg.PowerMode != PowerEnergySaving {
		t.Errorf("power_mode = %q, want %q", cfg.PowerMode, PowerEnergySaving)
	}
	if cfg.WirelessEnabled {
		t.Error("expected wireless_enabled to be false")
	}
	if cfg.MetricsPort != 9999 {
		t.Errorf("metrics_port = %d, want 9999", cfg.MetricsPort)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error loading a missing config file")
	}
}

func TestPeriodsScaleWithPowerMode(t *testing.T) {
	normal := Periods(PowerNormal)
	saving := Periods(PowerEnergySaving)
	ultra := Periods(PowerUltraLow)

	if normal.TaskTick >= saving.TaskTick || saving.TaskTick >= ultra.TaskTick {
		t.Errorf("expected TaskTick to grow with deeper power saving: normal=%v saving=%v ultra=%v",
			normal.TaskTick, saving.TaskTick, ultra.TaskTick)
	}
	if normal.SchedulerTick >= saving.SchedulerTick || saving.SchedulerTick >= ultra.SchedulerTick {
		t.Errorf("expected SchedulerTick to grow with deeper power saving")
	}
	if normal.TaskTick != time.Second {
		t.Errorf("normal TaskTick = %v, want 1s", normal.TaskTick)
	}
}
