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

	adactor "beamctl/internal/adapter/actor"
	"beamctl/internal/config"
	"beamctl/internal/core/actor"
	"beamctl/internal/core/domain"
	"beamctl/internal/server"
	"beamctl/internal/store"
	"beamctl/internal/util/actorutil"

	"beamctl/pkg/projector"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"github.com/spf13/afero"
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

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// profile registry
	registry := projector.NewRegistry()
	if err := projector.LoadDefaults(registry); err != nil {
		panic(err)
	}
	if cfg.EnableVirtual {
		if err := registry.Register(projector.NewVirtual(false, "HDMI 1").Profile()); err != nil {
			panic(err)
		}
	}

	// device roster store
	deviceStore, err := store.NewStore(afero.NewOsFs(), cfg.DevicesFile)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewFleetActor(*cfg, registry, deviceStore, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_FLEET)
	if err != nil {
		return
	}

	// periodic discovery rescan
	if cfg.DiscoveryConfig.RescanCron != "" {
		if err := scheduleRescan(ctx, pid, cfg.DiscoveryConfig.RescanCron); err != nil {
			panic(err)
		}
	}

	server := server.NewServer(*cfg, ctx, pid)
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
}

func initConfig() (*config.Config, error) {

	// alias PORT => BEAMCTL_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("BEAMCTL_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("beamctl")
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
	if cfg.CommandConfig.TimeoutMillis < 500 {
		return nil, errors.New("config param command.timeout_millis should be >= 500")
	}
	if cfg.CycleConfig.MaxSteps < 1 {
		return nil, errors.New("config param cycle.max_steps should be >= 1")
	}
	if cfg.MonitorConfig.PollIntervalMillis < 1000 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	if cfg.DiscoveryConfig.FirstHost > cfg.DiscoveryConfig.LastHost || cfg.DiscoveryConfig.LastHost > 254 {
		return nil, errors.New("config param discovery.first_host/last_host out of range")
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		if !cfg.MQTT.Enable {
			return adactor.NewTestMQTTActor(cfg, es, logger)
		}
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func scheduleRescan(ctx *pactor.RootContext, fleet *pactor.PID, cronExpr string) error {
	trigger, err := quartz.NewCronTrigger(cronExpr)
	if err != nil {
		return err
	}
	sched := quartz.NewStdScheduler()
	sched.Start(context.Background())
	rescanJob := job.NewFunctionJob(func(context.Context) (int, error) {
		ctx.Send(fleet, domain.StartScanRequest{})
		return 0, nil
	})
	return sched.ScheduleJob(quartz.NewJobDetail(rescanJob, quartz.NewJobKey("discovery_rescan")), trigger)
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "beamctl")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("devices_file", "devices.json")
	viper.SetDefault("enable_virtual", false)
	viper.SetDefault("command.timeout_millis", 2000)
	viper.SetDefault("command.duplicate_delay_millis", 500)
	viper.SetDefault("cycle.max_steps", 12)
	viper.SetDefault("cycle.step_delay_millis", 500)
	viper.SetDefault("discovery.probe_timeout_millis", 500)
	viper.SetDefault("discovery.base_network", "192.168.0")
	viper.SetDefault("discovery.first_host", 1)
	viper.SetDefault("discovery.last_host", 254)
	viper.SetDefault("discovery.parallel", 16)
	viper.SetDefault("monitor.poll_interval_millis", 5000)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
