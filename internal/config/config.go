package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// BLE
	BLEAdapter       string // BlueZ adapter id, e.g. "hci0"
	SensorVendor     string // "auto", "atmotube" or "pmscan"
	SensorNamePrefix string // overrides the vendor's default advertised-name prefix
	ScanTimeout      time.Duration
	SensorSimulate   bool // use the simulated central instead of real hardware

	// MQTT bridge to the recording consumer
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string

	// Rule store (SQLite-backed key-value store)
	DSN             string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool

	ContextEvalInterval time.Duration
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	bleAdapter := strings.TrimSpace(os.Getenv("BLE_ADAPTER"))
	if bleAdapter == "" {
		bleAdapter = "hci0"
	}

	sensorVendor := strings.ToLower(strings.TrimSpace(os.Getenv("SENSOR_VENDOR")))
	if sensorVendor == "" {
		sensorVendor = "auto"
	}
	switch sensorVendor {
	case "auto", "atmotube", "pmscan":
	default:
		return Config{}, fmt.Errorf("invalid SENSOR_VENDOR %q (allowed: auto, atmotube, pmscan)", sensorVendor)
	}

	sensorNamePrefix := strings.TrimSpace(os.Getenv("SENSOR_NAME_PREFIX"))

	scanTimeoutStr := strings.TrimSpace(os.Getenv("SCAN_TIMEOUT"))
	if scanTimeoutStr == "" {
		scanTimeoutStr = "60s"
	}
	scanTimeout, err := time.ParseDuration(scanTimeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SCAN_TIMEOUT %q: %w", scanTimeoutStr, err)
	}
	if scanTimeout <= 0 {
		return Config{}, fmt.Errorf("SCAN_TIMEOUT must be positive, got %v", scanTimeout)
	}

	sensorSimulate, err := parseBool("SENSOR_SIMULATE", false)
	if err != nil {
		return Config{}, err
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "pmscan-gateway"
	}

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	sqlitePath := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if sqlitePath == "" {
		sqlitePath = "data/rules.db"
	}

	maxOpenConnsStr := strings.TrimSpace(os.Getenv("DB_MAX_OPEN_CONNS"))
	if maxOpenConnsStr == "" {
		maxOpenConnsStr = "1"
	}
	maxOpenConns, err := strconv.Atoi(maxOpenConnsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_MAX_OPEN_CONNS %q: %w", maxOpenConnsStr, err)
	}

	maxIdleConnsStr := strings.TrimSpace(os.Getenv("DB_MAX_IDLE_CONNS"))
	if maxIdleConnsStr == "" {
		maxIdleConnsStr = "1"
	}
	maxIdleConns, err := strconv.Atoi(maxIdleConnsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_MAX_IDLE_CONNS %q: %w", maxIdleConnsStr, err)
	}

	connMaxLifetimeStr := strings.TrimSpace(os.Getenv("DB_CONN_MAX_LIFETIME"))
	if connMaxLifetimeStr == "" {
		connMaxLifetimeStr = "0s"
	}
	connMaxLifetime, err := time.ParseDuration(connMaxLifetimeStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME %q: %w", connMaxLifetimeStr, err)
	}

	logSQL, err := parseBool("DB_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	contextEvalIntervalStr := strings.TrimSpace(os.Getenv("CONTEXT_EVAL_INTERVAL"))
	if contextEvalIntervalStr == "" {
		contextEvalIntervalStr = "30s"
	}
	contextEvalInterval, err := time.ParseDuration(contextEvalIntervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid CONTEXT_EVAL_INTERVAL %q: %w", contextEvalIntervalStr, err)
	}
	if contextEvalInterval <= 0 {
		return Config{}, fmt.Errorf("CONTEXT_EVAL_INTERVAL must be positive, got %v", contextEvalInterval)
	}

	return Config{
		AppEnv:              appEnv,
		LogLevel:            level,
		BLEAdapter:          bleAdapter,
		SensorVendor:        sensorVendor,
		SensorNamePrefix:    sensorNamePrefix,
		ScanTimeout:         scanTimeout,
		SensorSimulate:      sensorSimulate,
		MQTTBroker:          mqttBroker,
		MQTTPort:            mqttPort,
		MQTTClientID:        mqttClientID,
		DSN:                 dsn,
		SQLitePath:          sqlitePath,
		MaxOpenConns:        maxOpenConns,
		MaxIdleConns:        maxIdleConns,
		ConnMaxLifetime:     connMaxLifetime,
		LogSQL:              logSQL,
		ContextEvalInterval: contextEvalInterval,
	}, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
