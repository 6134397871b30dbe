package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := envOr("CONFIG_PATH", defaultConfigPath())
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := newLogger(cfg.Logging)
	defer logCloser.Close()

	lock, err := AcquireInstanceLock(envOr("LOCK_PATH", defaultLockPath()))
	if err != nil {
		log.Error().Err(err).Msg("failed to obtain exclusivity, is another notifier running?")
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn().Err(err).Msg("release instance lock")
		}
		log.Info().Msg("instance lock released")
	}()

	store := NewConfigStore(cfgPath, cfg, log)

	// OTel providers: exporters only when enabled, otherwise the SDK
	// providers run without readers/processors.
	res := resource.NewSchemaless(attribute.String("service.name", cfg.OTel.ServiceName))
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	loggerOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	if cfg.OTel.Enabled {
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		logOpts := []otlploggrpc.Option{otlploggrpc.WithInsecure()}
		if cfg.OTel.Endpoint != "" {
			metricOpts = append(metricOpts, otlpmetricgrpc.WithEndpoint(cfg.OTel.Endpoint))
			logOpts = append(logOpts, otlploggrpc.WithEndpoint(cfg.OTel.Endpoint))
		}

		metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			return fmt.Errorf("metric exporter: %w", err)
		}
		if cfg.Metrics.Enabled {
			meterOpts = append(meterOpts, sdkmetric.WithReader(
				sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.Metrics.Interval))))
		}

		logExporter, err := otlploggrpc.New(ctx, logOpts...)
		if err != nil {
			return fmt.Errorf("log exporter: %w", err)
		}
		loggerOpts = append(loggerOpts, sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)))
	}
	meterProvider := sdkmetric.NewMeterProvider(meterOpts...)
	defer meterProvider.Shutdown(context.Background())
	loggerProvider := sdklog.NewLoggerProvider(loggerOpts...)
	defer loggerProvider.Shutdown(context.Background())

	metrics, err := newPipelineMetrics(meterProvider.Meter(cfg.OTel.ServiceName))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	channels, err := buildChannels(store, log)
	if err != nil {
		return err
	}

	pipeline := NewPipeline(store, channels, metrics, log)
	if cfg.OTel.Enabled {
		pipeline.Subscribe(&OTelLogSubscriber{logger: loggerProvider.Logger(cfg.OTel.ServiceName)})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := store.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("config hot reload disabled")
		}
	}()

	for _, ch := range channels {
		wg.Add(1)
		go func(c Channel) {
			defer wg.Done()
			if err := c.Start(ctx); err != nil {
				log.Warn().Err(err).Str("channel", c.Name()).Msg("channel stopped")
			}
		}(ch)
	}

	channelNames := make([]string, len(channels))
	for i, ch := range channels {
		channelNames[i] = ch.Name()
	}
	log.Info().
		Str("log_dir", cfg.General.LogDir).
		Dur("directory_poll", cfg.General.DirectoryPollInterval).
		Dur("tail_poll", cfg.General.TailPollInterval).
		Strs("channels", channelNames).
		Msg("vrc-log-notifier started")

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug().Err(err).Msg("sd_notify ready")
	}

	err = pipeline.Run(ctx)
	log.Info().Msg("cleaning up before termination")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	wg.Wait()

	if errors.Is(err, ErrDeliveryFailed) {
		log.Error().Err(err).Msg("notification channel failed")
	}
	return err
}

func buildChannels(store *ConfigStore, log zerolog.Logger) ([]Channel, error) {
	cfg := store.Get()
	var channels []Channel
	if cfg.XSOverlay.Enabled {
		channels = append(channels, NewXSOverlayChannel(cfg.XSOverlay.URL, log))
	}
	if cfg.Discord.Enabled {
		dc, err := NewDiscordChannel(cfg.Discord.BotToken, cfg.Discord.ChannelID, store, log)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		channels = append(channels, dc)
	}
	if cfg.Telegram.Enabled {
		tc, err := NewTelegramChannel(cfg.Telegram.BotToken, cfg.Telegram.ChatID, store, log)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		channels = append(channels, tc)
	}
	if cfg.Console.Enabled || len(channels) == 0 {
		channels = append(channels, NewConsoleChannel(log))
	}
	return channels, nil
}
