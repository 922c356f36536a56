package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/powergroup2mqtt/internal/adapter/actor"
	"github.com/berfenger/powergroup2mqtt/internal/adapter/groupfile"
	"github.com/berfenger/powergroup2mqtt/internal/adapter/store"
	"github.com/berfenger/powergroup2mqtt/internal/config"
	"github.com/berfenger/powergroup2mqtt/internal/core/actor"
	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/events"
	"github.com/berfenger/powergroup2mqtt/internal/core/service"
	"github.com/berfenger/powergroup2mqtt/internal/server"
	"github.com/berfenger/powergroup2mqtt/internal/util/actorutil"
	"github.com/berfenger/powergroup2mqtt/pkg/meter_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

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
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// previous state store
	backend, err := storeBackend(cfg, logger)
	if err != nil {
		panic(err)
	}
	stateStore := store.NewPreviousStateStore(backend, logger)
	if err := stateStore.Load(); err != nil {
		// members restart unseen, totals restart at zero
		logger.Error("could not load previous state, starting empty", zap.Error(err))
	}
	defer stateStore.Close()

	dumper := store.NewDumper(stateStore, cfg.Store.DumpInterval(), logger)
	if err := dumper.Start(context.Background()); err != nil {
		panic(err)
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root
	es := as.EventStream

	engineProv, err := engineActorProvider(cfg, stateStore, logger)
	if err != nil {
		panic(err)
	}

	// init Modbus actor provider
	modbusProv, err := modbusActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, es, engineProv, modbusProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid, logger)
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

	ctx.Stop(pid)
	as.Shutdown()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dumper.Stop(stopCtx); err != nil {
		log.Printf("final state dump failed: %v", err)
	}
}

func initConfig() (*config.Config, error) {

	// alias PORT => POWERGROUP_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("POWERGROUP_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("powergroup")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if _, err := service.NewUnitNormalizer(service.UnitPrefix(cfg.Energy.UnitPrefix)); err != nil {
		return nil, errors.New("config param energy.unit_prefix must be one of none, kilo or mega")
	}
	if cfg.Store.DumpIntervalSeconds < 10 {
		return nil, errors.New("config param store.dump_interval_seconds should be >= 10")
	}
	switch cfg.Store.Backend {
	case config.STORE_BACKEND_FILE, config.STORE_BACKEND_SQLITE:
	default:
		return nil, errors.New("config param store.backend must be file or sqlite")
	}
	registry := service.NewEntityRegistry()
	for _, e := range cfg.Entities {
		if _, err := registry.Put(e.ToEntity()); err != nil {
			return nil, fmt.Errorf("config param entities: %w", err)
		}
	}
	for _, m := range cfg.Meters {
		if m.PollIntervalMillis > 0 && m.PollIntervalMillis < 1000 {
			return nil, fmt.Errorf("config param meters.%s.poll_interval_millis should be >= 1000", m.Name)
		}
	}

	return &cfg, nil
}

func storeBackend(cfg *config.Config, logger *zap.Logger) (store.Backend, error) {
	if cfg.Store.Backend == config.STORE_BACKEND_SQLITE {
		return store.NewSQLiteBackend(cfg.Store.Path, logger)
	}
	return store.NewFileBackend(cfg.Store.Path, logger), nil
}

func engineActorProvider(cfg *config.Config, stateStore *store.PreviousStateStore, logger *zap.Logger) (actor.EngineActorProvider, error) {

	normalizer, err := service.NewUnitNormalizer(service.UnitPrefix(cfg.Energy.UnitPrefix))
	if err != nil {
		return nil, err
	}

	entities := make([]domain.Entity, 0, len(cfg.Entities))
	for _, e := range cfg.Entities {
		entities = append(entities, e.ToEntity())
	}
	groupStore := groupfile.NewStore(cfg.GroupsFile, logger)

	// the engine outlives actor restarts, only the actor is rebuilt
	var engine *service.Engine
	var sink *events.EventStreamSink
	return func(es *eventstream.EventStream) *actor.EngineActor {
		if engine == nil {
			sink = events.NewEventStreamSink(es)
			engine = service.NewEngine(service.EngineOptions{
				Registry:              service.NewEntityRegistry(entities...),
				Store:                 stateStore,
				GroupStore:            groupStore,
				Sink:                  sink,
				Normalizer:            normalizer,
				DefaultUpdateInterval: cfg.Energy.UpdateInterval(),
				Logger:                logger,
			})
		}
		return actor.NewEngineActor(engine, groupStore, sink, logger)
	}, nil
}

func modbusActorProvider(cfg *config.Config, logger *zap.Logger) (actor.ModbusActorProvider, error) {
	if len(cfg.Meters) == 0 {
		return nil, nil
	}

	var timeout time.Duration
	meters := make([]meter_modbus.MeterReader, 0, len(cfg.Meters))
	for _, m := range cfg.Meters {
		reader, err := meter_modbus.CreateModbusMeterReader(m.Name, m.Host, m.Port, m.UnitId,
			m.Timeout(), m.MeterRegisters(), logger, nil)
		if err != nil {
			return nil, err
		}
		meters = append(meters, reader)
		timeout = max(timeout, m.Timeout())
	}

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(meters, timeout*time.Duration(len(meters)), logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "powergroup")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("energy.unit_prefix", "kilo")
	viper.SetDefault("energy.update_interval_seconds", 30)
	viper.SetDefault("store.backend", config.STORE_BACKEND_FILE)
	viper.SetDefault("store.path", "powergroup.state.json")
	viper.SetDefault("store.dump_interval_seconds", 60)
	viper.SetDefault("groups_file", "groups.yaml")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
