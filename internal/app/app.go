// Package app wires the gateway process: SQLite-backed rule repository,
// MQTT bridge, BLE central, vendor adapter and the periodic context
// evaluation loop.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/david-ria/pmscanv2-sub007/internal/autocontext"
	"github.com/david-ria/pmscanv2-sub007/internal/ble"
	"github.com/david-ria/pmscanv2-sub007/internal/config"
	"github.com/david-ria/pmscanv2-sub007/internal/mqtt"
	"github.com/david-ria/pmscanv2-sub007/internal/sensor"
	"github.com/david-ria/pmscanv2-sub007/internal/sensor/atmotube"
	"github.com/david-ria/pmscanv2-sub007/internal/sensor/pmscan"
	"github.com/david-ria/pmscanv2-sub007/internal/storage"
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("initializing gateway",
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"sensor_vendor", cfg.SensorVendor,
		"simulate", cfg.SensorSimulate,
	)

	db, err := storage.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("open rule store: %w", err)
	}
	defer func() {
		if err := storage.Close(db); err != nil {
			logger.Warn("closing rule store", "error", err)
		}
	}()

	repo, err := autocontext.NewRepository(ctx, storage.NewSQLiteStore(db), logger)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	mqttClient, err := mqtt.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect()

	// The broker being down must not keep the sensor pipeline from running.
	go func() {
		if err := mqttClient.Connect(ctx); err != nil {
			logger.Warn("mqtt connect failed; gateway continues without publishing", "error", err)
		}
	}()

	var central ble.Central
	if cfg.SensorSimulate {
		central = ble.NewSimulatedCentral(time.Second, logger)
	} else {
		central = ble.NewBlueZCentral(cfg.BLEAdapter, logger)
	}

	registry := sensor.NewRegistry(atmotube.Descriptor(), pmscan.Descriptor())
	adapter, err := selectAdapter(cfg, registry, central, logger)
	if err != nil {
		return err
	}

	manager := sensor.NewManager(adapter,
		func(r sensor.Reading) {
			if err := mqttClient.PublishReading(r); err != nil {
				logger.Debug("reading not published", "error", err)
			}
		},
		func(pct int, charging bool) {
			logger.Info("battery update", "level_pct", pct, "charging", charging)
		},
		logger,
	)

	scanCtx, cancelScan := context.WithTimeout(ctx, cfg.ScanTimeout)
	err = manager.Acquire(scanCtx)
	cancelScan()
	if err != nil {
		return fmt.Errorf("start sensor session: %w", err)
	}
	defer func() {
		if err := manager.Release(); err != nil {
			logger.Warn("stopping sensor session", "error", err)
		}
	}()

	runContextLoop(ctx, cfg.ContextEvalInterval, repo, autocontext.ClockSignals{}, mqttClient, logger)

	logger.Info("gateway shutting down")
	return ctx.Err()
}

// selectAdapter resolves the configured vendor, or for "auto" keeps the
// registration order: the first vendor whose device is within reach wins at
// Acquire time, so auto simply starts with the first descriptor.
func selectAdapter(cfg config.Config, registry *sensor.Registry, central ble.Central, logger *slog.Logger) (sensor.Adapter, error) {
	if cfg.SensorVendor != "auto" {
		d, ok := registry.ByVendor(cfg.SensorVendor)
		if !ok {
			return nil, fmt.Errorf("no adapter registered for vendor %q", cfg.SensorVendor)
		}
		return d.New(central, logger), nil
	}

	if cfg.SensorNamePrefix != "" {
		if d, ok := registry.MatchName(cfg.SensorNamePrefix); ok {
			return d.New(central, logger), nil
		}
		return nil, fmt.Errorf("no adapter matches device name prefix %q", cfg.SensorNamePrefix)
	}

	ds := registry.Descriptors()
	if len(ds) == 0 {
		return nil, fmt.Errorf("no sensor adapters registered")
	}
	return ds[0].New(central, logger), nil
}

// runContextLoop re-evaluates the rule set on a ticker and publishes the
// label whenever it changes. Blocks until ctx is done.
func runContextLoop(ctx context.Context, interval time.Duration, repo *autocontext.Repository, signals autocontext.SignalSource, mqttClient *mqtt.Client, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	current := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			label := autocontext.Evaluate(repo.GetAllRules(), signals.Snapshot())
			if label == current {
				continue
			}
			logger.Info("context changed", "from", current, "to", label)
			current = label
			if err := mqttClient.PublishContext(label); err != nil {
				logger.Debug("context not published", "error", err)
			}
		}
	}
}
