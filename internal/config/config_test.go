package config

import (
	"log/slog"
	"testing"
	"time"
)

// clearEnv blanks every key LoadFromEnv reads so tests see only what they set.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "LOG_LEVEL",
		"BLE_ADAPTER", "SENSOR_VENDOR", "SENSOR_NAME_PREFIX", "SCAN_TIMEOUT", "SENSOR_SIMULATE",
		"MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID",
		"DB_DSN", "SQLITE_PATH", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS",
		"DB_CONN_MAX_LIFETIME", "DB_LOG_SQL",
		"CONTEXT_EVAL_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}

	if got.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want %q", got.AppEnv, "dev")
	}
	if got.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", got.LogLevel, slog.LevelInfo)
	}
	if got.BLEAdapter != "hci0" {
		t.Errorf("BLEAdapter = %q, want %q", got.BLEAdapter, "hci0")
	}
	if got.SensorVendor != "auto" {
		t.Errorf("SensorVendor = %q, want %q", got.SensorVendor, "auto")
	}
	if got.ScanTimeout != 60*time.Second {
		t.Errorf("ScanTimeout = %v, want 60s", got.ScanTimeout)
	}
	if got.SensorSimulate {
		t.Error("SensorSimulate should default to false")
	}
	if got.MQTTBroker != "localhost" || got.MQTTPort != 1883 {
		t.Errorf("MQTT defaults = %q:%d, want localhost:1883", got.MQTTBroker, got.MQTTPort)
	}
	if got.SQLitePath != "data/rules.db" {
		t.Errorf("SQLitePath = %q, want %q", got.SQLitePath, "data/rules.db")
	}
	if got.ContextEvalInterval != 30*time.Second {
		t.Errorf("ContextEvalInterval = %v, want 30s", got.ContextEvalInterval)
	}
}

func TestLoadFromEnv_SensorVendor(t *testing.T) {
	tests := []struct {
		name    string
		vendor  string
		want    string
		wantErr bool
	}{
		{name: "atmotube", vendor: "atmotube", want: "atmotube"},
		{name: "pmscan", vendor: "pmscan", want: "pmscan"},
		{name: "mixed case normalized", vendor: "  PMScan ", want: "pmscan"},
		{name: "auto", vendor: "auto", want: "auto"},
		{name: "unknown vendor", vendor: "airthings", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("SENSOR_VENDOR", tt.vendor)

			got, err := LoadFromEnv()
			if tt.wantErr {
				if err == nil {
					t.Fatal("LoadFromEnv() error = nil, want non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromEnv() error = %v, want nil", err)
			}
			if got.SensorVendor != tt.want {
				t.Errorf("SensorVendor = %q, want %q", got.SensorVendor, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad app env", key: "APP_ENV", value: "staging"},
		{name: "bad log level", key: "LOG_LEVEL", value: "verbose"},
		{name: "bad scan timeout", key: "SCAN_TIMEOUT", value: "fast"},
		{name: "negative scan timeout", key: "SCAN_TIMEOUT", value: "-5s"},
		{name: "bad mqtt port", key: "MQTT_PORT", value: "default"},
		{name: "bad simulate flag", key: "SENSOR_SIMULATE", value: "maybe"},
		{name: "bad eval interval", key: "CONTEXT_EVAL_INTERVAL", value: "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := LoadFromEnv(); err == nil {
				t.Fatal("LoadFromEnv() error = nil, want non-nil")
			}
		})
	}
}

func TestLoadFromEnv_Durations(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCAN_TIMEOUT", "2m")
	t.Setenv("CONTEXT_EVAL_INTERVAL", "5s")
	t.Setenv("DB_CONN_MAX_LIFETIME", "1h")

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}
	if got.ScanTimeout != 2*time.Minute {
		t.Errorf("ScanTimeout = %v, want 2m", got.ScanTimeout)
	}
	if got.ContextEvalInterval != 5*time.Second {
		t.Errorf("ContextEvalInterval = %v, want 5s", got.ContextEvalInterval)
	}
	if got.ConnMaxLifetime != time.Hour {
		t.Errorf("ConnMaxLifetime = %v, want 1h", got.ConnMaxLifetime)
	}
}
