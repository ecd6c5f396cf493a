package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/door"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/mqtt"
	"github.com/kozaktomas/facegate/internal/recognition"
	"github.com/kozaktomas/facegate/internal/serial"
	"github.com/kozaktomas/facegate/internal/session"
	"github.com/kozaktomas/facegate/internal/status"
	"github.com/kozaktomas/facegate/internal/vision"
	"github.com/kozaktomas/facegate/internal/web"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the door controller",
	Long: `Trains a model from the sample store, opens the camera and the serial link,
and drives the lock from live recognition. The status API and Prometheus
metrics are served on WEB_HOST:WEB_PORT; door events go to MQTT when
MQTT_BROKER is set.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("no-web", false, "Do not start the status API")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	board := status.NewBoard()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	builder, err := newBuilder(cfg, store)
	if err != nil {
		return err
	}

	engine := recognition.NewEngine(loadDetector(&cfg.Camera), cfg.Recognition.Threshold)
	if !engine.DetectorAvailable() {
		board.SetStatus("camera preview only (no face cascade)")
	}

	transport := serial.NewTransport(&cfg.Serial, serial.NewDiscovery(&cfg.Serial),
		serial.WithStatus(func(s serial.Status) {
			m.SetSerial(s.Connected, s.Err != nil)
			if s.Connected {
				board.SetStatus(fmt.Sprintf("serial connected: %s @ %dbps", s.Path, s.Baud))
			} else {
				board.SetStatus("serial disconnected")
			}
		}))
	if err := transport.Open(cfg.Serial.Port, cfg.Serial.Baud); err != nil {
		slog.Warn("serial: no actuator port at startup, will retry on first command", "error", err)
		board.SetStatus("serial not connected")
	}
	defer transport.Close()

	machine := door.NewMachine(door.Config{
		OpenConfirmFrames: cfg.Door.OpenConfirmFrames,
		CloseGrace:        cfg.Door.CloseGrace,
	}, transport)

	var camera session.Camera
	if vision.Supported() {
		c := vision.NewCamera(vision.NewOpener(&cfg.Camera), cfg.Camera.EmptyFrameLimit)
		if err := c.Open(); err != nil {
			slog.Warn("vision: no camera at startup, retrying", "error", err)
			board.SetStatus("camera not available")
		}
		defer c.Close()
		camera = c
	} else {
		slog.Warn("vision: built without opencv, running without a camera")
		board.SetStatus("camera not available (built without opencv)")
	}

	var onAccess session.AccessFunc
	if cfg.MQTT.Enabled() {
		client := mqtt.NewClient(&cfg.MQTT, cfg.DeviceID, m)
		defer client.Disconnect()
		go func() {
			if err := client.Connect(ctx); err != nil {
				slog.Warn("mqtt: connect failed", "broker", cfg.MQTT.Broker, "error", err)
			}
		}()

		events := mqtt.NewEvents(client, cfg.MQTT.TopicPrefix, cfg.DeviceID, m)
		go events.Run(ctx)
		machine.Observe(events.Lock)
		board.OnChange(events.Status)
		onAccess = events.Access
	}

	ctrl := session.New(camera, engine, machine, builder, session.Options{
		Tick:     cfg.Camera.TickInterval,
		Metrics:  m,
		Board:    board,
		OnAccess: onAccess,
	})

	if _, err := ctrl.Retrain(ctx); err != nil {
		slog.Warn("session: initial training failed, recognition disabled until retrain", "error", err)
	}

	if !mustGetBool(cmd, "no-web") {
		server := web.NewServer(&cfg.Web, web.Deps{
			DeviceID: cfg.DeviceID,
			Session:  ctrl,
			Store:    store,
			Link:     transport,
			Registry: registry,
		})
		go func() {
			if err := server.Start(); err != nil {
				slog.Error("web: server stopped", "error", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("web: shutdown", "error", err)
			}
		}()
	}

	fmt.Printf("Facegate %s running as %s (Ctrl+C to stop)\n", Version, cfg.DeviceID)
	ctrl.Run(ctx, transport.Lines())
	fmt.Println("\nShutting down...")
	return nil
}
