package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/statesync2mqtt/internal/adapter/actor"
	"github.com/berfenger/statesync2mqtt/internal/adapter/metrics"
	"github.com/berfenger/statesync2mqtt/internal/adapter/remote"
	"github.com/berfenger/statesync2mqtt/internal/adapter/scheduler"
	"github.com/berfenger/statesync2mqtt/internal/adapter/storage/influxsink"
	"github.com/berfenger/statesync2mqtt/internal/adapter/storage/pgsink"
	"github.com/berfenger/statesync2mqtt/internal/adapter/storage/rediscache"
	"github.com/berfenger/statesync2mqtt/internal/adapter/storage/sqlitedir"
	"github.com/berfenger/statesync2mqtt/internal/config"
	"github.com/berfenger/statesync2mqtt/internal/core/actor"
	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"
	"github.com/berfenger/statesync2mqtt/internal/server"
	"github.com/berfenger/statesync2mqtt/internal/util/actorutil"
	"github.com/berfenger/statesync2mqtt/pkg/ecweather"
	"github.com/berfenger/statesync2mqtt/pkg/sunspec_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const storageConnectTimeout = 10 * time.Second

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := config.Load(viper.New())
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	slog.Info("Using", "config", config.Redacted(*cfg))

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// metrics
	registry := prometheus.NewRegistry()
	instrument := metrics.NewPromInstrument(registry)

	// host device registry and history sinks
	deps := actor.IntegrationDeps{Instrument: instrument}
	var directory *sqlitedir.Directory
	if cfg.Storage.SqlitePath != "" {
		directory, err = sqlitedir.Open(cfg.Storage.SqlitePath)
		if err != nil {
			logger.Fatal("cannot open device directory", zap.Error(err))
		}
		defer directory.Close()
		deps.Directory = directory
	}
	sinks := connectSinks(cfg.Storage, logger)

	// poll scheduler
	pollScheduler, err := scheduler.NewQuartzPollScheduler(logger)
	if err != nil {
		logger.Fatal("cannot create scheduler", zap.Error(err))
	}
	schedCtx, cancelSched := context.WithCancel(context.Background())
	pollScheduler.Start(schedCtx)
	deps.Scheduler = pollScheduler

	remotes, err := remoteIntegrations(cfg, logger)
	if err != nil {
		logger.Fatal("cannot create remote clients", zap.Error(err))
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, remotes, deps,
			mqttActorProvider(cfg, logger), recorderActorProvider(sinks, instrument, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("cannot spawn master", zap.Error(err))
		return
	}

	var devices server.DeviceLister
	if directory != nil {
		devices = directory
	}
	server := server.NewServer(*cfg, ctx, pid, registry, devices)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	_ = ctx.StopFuture(pid).Wait()
	pollScheduler.Stop()
	cancelSched()
	as.Shutdown()
}

func remoteIntegrations(cfg *config.Config, logger *zap.Logger) ([]actor.RemoteIntegration, error) {
	var remotes []actor.RemoteIntegration

	for _, w := range cfg.Weather {
		client, err := ecweather.NewClient(ecweather.Options{
			Language:    w.Language,
			Station:     w.Station,
			Latitude:    w.Latitude,
			Longitude:   w.Longitude,
			BaseURL:     w.BaseURL,
			SiteListURL: w.SiteListURL,
			Logger:      logger.With(zap.String("instance", w.Name)),
		})
		if err != nil {
			return nil, fmt.Errorf("weather %s: %w", w.Name, err)
		}
		remotes = append(remotes, actor.RemoteIntegration{
			Instance: domain.IntegrationInstance{Id: w.Id, Name: w.Name, Title: w.Title, Kind: domain.INTEGRATION_KIND_WEATHER},
			Client:   remote.NewWeatherClient(client),
		})
	}

	for _, c := range cfg.Controllers {
		reader, err := sunspec_modbus.CreateControllerIntSFModbusReader(c.Host, c.Port, c.UnitId,
			time.Duration(c.TimeoutMillis)*time.Millisecond, logger, nil)
		if err != nil {
			return nil, fmt.Errorf("controller %s: %w", c.Name, err)
		}
		points := make([]sunspec_modbus.Point, 0, len(c.Points))
		for _, p := range c.Points {
			points = append(points, sunspec_modbus.Point{
				Sensor:             p.Sensor,
				Model:              p.Model,
				Address:            p.Address,
				Kind:               sunspec_modbus.PointKind(p.Kind),
				Length:             p.Length,
				ScaleFactor:        p.ScaleFactor,
				ScaleFactorAddress: p.ScaleFactorAddress,
				Unit:               p.Unit,
				DeviceClass:        p.DeviceClass,
			})
		}
		remotes = append(remotes, actor.RemoteIntegration{
			Instance: domain.IntegrationInstance{Id: c.Id, Name: c.Name, Title: c.Title, Kind: domain.INTEGRATION_KIND_CONTROLLER},
			Client:   remote.NewControllerClient(reader, points, c.Host, c.Port, c.Mac),
		})
	}

	return remotes, nil
}

// connectSinks skips, with a warning, every store that cannot be reached at
// boot. Readings are never buffered for them.
func connectSinks(cfg config.StorageConfig, logger *zap.Logger) []port.ReadingSink {
	ctx, cancel := context.WithTimeout(context.Background(), storageConnectTimeout)
	defer cancel()

	var sinks []port.ReadingSink
	if cfg.RedisAddr != "" {
		if cache, err := rediscache.Connect(ctx, cfg.RedisAddr); err != nil {
			logger.Warn("redis sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, cache)
		}
	}
	if cfg.InfluxDB.Enabled() {
		sink, err := influxsink.Connect(ctx, influxsink.Options{
			URL:    cfg.InfluxDB.URL,
			Token:  cfg.InfluxDB.Token,
			Org:    cfg.InfluxDB.Org,
			Bucket: cfg.InfluxDB.Bucket,
		})
		if err != nil {
			logger.Warn("influxdb sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if cfg.PostgresURL != "" {
		if sink, err := pgsink.Connect(ctx, cfg.PostgresURL); err != nil {
			logger.Warn("postgres sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func recorderActorProvider(sinks []port.ReadingSink, instrument *metrics.PromInstrument, logger *zap.Logger) actor.RecorderActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.RecorderActor {
		return adactor.NewRecorderActor(eventStream, sinks, adactor.DEFAULT_SINK_WRITE_TIMEOUT, instrument, logger)
	}
}
