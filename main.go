package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/failsafe/cmd"
	"github.com/smazurov/failsafe/internal/api"
	"github.com/smazurov/failsafe/internal/config"
	"github.com/smazurov/failsafe/internal/device"
	"github.com/smazurov/failsafe/internal/events"
	"github.com/smazurov/failsafe/internal/led"
	"github.com/smazurov/failsafe/internal/logging"
	"github.com/smazurov/failsafe/internal/panel"
	"github.com/smazurov/failsafe/internal/systemd"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8091" toml:"server.port" env:"SERVER_PORT"`
	CORS bool   `help:"Send permissive CORS headers" default:"false" toml:"server.cors" env:"SERVER_CORS"`

	// Device settings
	DeviceURL       string `help:"Recovery server base URL" default:"http://192.168.1.1" toml:"device.url" env:"DEVICE_URL"`
	DeviceTimeoutMs int    `help:"Per-request timeout in milliseconds" default:"10000" toml:"device.timeout_ms" env:"DEVICE_TIMEOUT_MS"`
	DeviceRetries   int    `help:"Retries for read-only device requests" default:"2" toml:"device.retries" env:"DEVICE_RETRIES"`

	// LED settings
	LEDBackend     string `help:"Indicator backend (http, sysfs, noop)" default:"http" toml:"led.backend" env:"LED_BACKEND"`
	LEDGpioRoot    string `help:"GPIO sysfs root for the sysfs backend" default:"/sys/class/gpio" toml:"led.gpio_root" env:"LED_GPIO_ROOT"`
	LEDSequence    string `help:"Indicator pins in marquee order" default:"25,24,23,12,13,10" toml:"led.sequence" env:"LED_SEQUENCE"`
	LEDSuppressed  string `help:"Pins forced off at startup and never animated" default:"11" toml:"led.suppressed" env:"LED_SUPPRESSED"`
	LEDSpeedMs     int    `help:"Marquee tick interval in milliseconds" default:"600" toml:"led.speed_ms" env:"LED_SPEED_MS"`
	LEDBootMode    string `help:"Marquee mode started after boot" default:"loop" toml:"led.boot_mode" env:"LED_BOOT_MODE"`
	LEDBootDelayMs int    `help:"Delay before the boot marquee in milliseconds" default:"1000" toml:"led.boot_delay_ms" env:"LED_BOOT_DELAY_MS"`

	// Auth settings
	AuthUsername string `help:"Basic auth username (empty disables auth)" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Metrics settings
	MetricsEnabled bool `help:"Expose Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingLED    string `help:"LED logging level" default:"info" toml:"logging.led" env:"LOGGING_LED"`
	LoggingFlash  string `help:"Flash guard logging level" default:"info" toml:"logging.flash" env:"LOGGING_FLASH"`
	LoggingDevice string `help:"Device client logging level" default:"info" toml:"logging.device" env:"LOGGING_DEVICE"`
	LoggingAPI    string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func buildPanel(opts *Options, bus *events.Bus, logger *slog.Logger) (*panel.Panel, error) {
	client, err := device.New(device.Config{
		BaseURL: opts.DeviceURL,
		Timeout: time.Duration(opts.DeviceTimeoutMs) * time.Millisecond,
		Retries: opts.DeviceRetries,
	}, logging.GetLogger("device"))
	if err != nil {
		return nil, err
	}

	ledLogger := logging.GetLogger("led")
	controller, err := led.New(opts.LEDBackend, client, opts.LEDGpioRoot, ledLogger)
	if err != nil {
		return nil, err
	}

	sequence, err := led.ParseSequence(opts.LEDSequence)
	if err != nil {
		return nil, err
	}
	suppressed := []int{}
	if opts.LEDSuppressed != "" {
		if suppressed, err = led.ParseSequence(opts.LEDSuppressed); err != nil {
			return nil, err
		}
	}
	bootMode, err := led.ParseMode(opts.LEDBootMode)
	if err != nil {
		return nil, err
	}

	logger.Info("Indicator backend ready", "backend", controller.Name(), "device", client.BaseURL())

	return panel.New(panel.Config{
		Controller:    controller,
		Device:        client,
		Bus:           bus,
		Logger:        logging.GetLogger("flash"),
		LEDLogger:     ledLogger,
		Sequence:      sequence,
		Suppressed:    suppressed,
		BootMode:      bootMode,
		Speed:         time.Duration(opts.LEDSpeedMs) * time.Millisecond,
		BootDelay:     time.Duration(opts.LEDBootDelayMs) * time.Millisecond,
		SkipBootDelay: opts.LEDBootDelayMs == 0,
	})
}

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"led":    opts.LoggingLED,
				"flash":  opts.LoggingFlash,
				"device": opts.LoggingDevice,
				"api":    opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		var (
			server  *api.Server
			ctrl    *panel.Panel
			watcher *config.Watcher[config.LEDConfig]
			cancel  context.CancelFunc = func() {}
		)

		hooks.OnStart(func() {
			eventBus := events.New()
			logging.SetLogCallback(func(entry logging.LogEntry) {
				eventBus.Publish(events.LogEntryEvent{
					Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
					Level:      entry.Level,
					Module:     entry.Module,
					Message:    entry.Message,
					Attributes: entry.Attributes,
				})
			})

			eventBus.Subscribe(func(e events.FlashStateEvent) {
				systemd.Status(logger, "flash "+e.State)
			})

			var err error
			ctrl, err = buildPanel(opts, eventBus, logger)
			if err != nil {
				logger.Error("Failed to initialize controls", "error", err)
				os.Exit(1)
			}

			if _, statErr := os.Stat(opts.Config); statErr == nil {
				watcher = config.NewConfigWatcher(opts.Config, config.LoadLEDConfig, logger)
				watcher.OnReload(func(cfg config.LEDConfig) {
					speed := time.Duration(cfg.SpeedMS) * time.Millisecond
					if speed <= 0 {
						speed = ctrl.Speed()
					}
					if reloadErr := ctrl.Reload(cfg.Sequence, speed); reloadErr != nil {
						logger.Warn("Rejected LED config reload", "error", reloadErr)
						return
					}
					logger.Info("LED config reloaded", "sequence", cfg.Sequence, "speed", speed)
				})
				if startErr := watcher.Start(); startErr != nil {
					logger.Warn("Config watcher unavailable", "error", startErr)
					watcher = nil
				}
			}

			apiOpts := &api.Options{
				AuthUsername: opts.AuthUsername,
				AuthPassword: opts.AuthPassword,
				CORS:         opts.CORS,
				Controls:     ctrl,
				EventBus:     eventBus,
			}
			if opts.MetricsEnabled {
				apiOpts.PrometheusHandler = promhttp.Handler()
			}
			server = api.NewServer(apiOpts)

			ctrl.Start()

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go systemd.Watchdog(ctx, logger)
			systemd.Ready(logger)

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			systemd.Stopping(logger)
			cancel()
			if server != nil {
				if stopErr := server.Stop(); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
			}
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
			if ctrl != nil {
				ctrl.Close()
			}
		})
	})

	cli.Root().Use = "failsafe"
	cli.Root().Short = "Control a router's failsafe recovery server"

	cli.Root().AddCommand(
		cmd.CreateLEDCmd(),
		cmd.CreateFlashCmd(),
		cmd.CreateUploadCmd(),
		cmd.CreateMACCmd(),
		cmd.CreateMTDCmd(),
		cmd.CreateRebootCmd(),
		cmd.CreateVersionCmd(),
	)

	cli.Run()
}
