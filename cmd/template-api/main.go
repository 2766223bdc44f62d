package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"template-task-service/internal/template-api/api"
	"template-task-service/internal/template-api/clients/local"
	"template-task-service/internal/template-api/config"
	taskDB "template-task-service/internal/template-api/db"
	"template-task-service/internal/template-api/events"
	tmKafka "template-task-service/internal/template-api/kafka"
	"template-task-service/internal/template-api/services"
	gorm_db "template-task-service/pkg/db"
)

func main() {
	var (
		configPath string
		addr       string
	)

	rootCmd := &cobra.Command{
		Use:          "template-api",
		Short:        "Serve infrastructure templates from Backstage or a local directory",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.New(), configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return run(cfg)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	hlog.SetOutput(os.Stdout)
	hlog.SetLevel(hlogLevel(cfg.LogLevel))
	hlog.Info("Template API starting...")

	orchCfg := services.OrchestratorConfig{
		Backends:      services.BuildBackends(cfg),
		DefaultClient: cfg.DefaultClient,
	}

	if cfg.Database.Enabled {
		gormDB, err := gorm_db.NewGormDB(gorm_db.Config{Type: cfg.Database.Type, DSN: cfg.Database.DSN, LogLevel: cfg.LogLevel})
		if err != nil {
			hlog.Fatalf("Failed to initialize database: %v", err)
		}
		if err := gorm_db.AutoMigrate(gormDB, &taskDB.TaskRecord{}); err != nil {
			hlog.Fatalf("Failed to migrate database: %v", err)
		}
		orchCfg.History = taskDB.NewTaskStore(gormDB)
		hlog.Info("Task history enabled.")
	}

	var publisher *events.Publisher
	if cfg.Kafka.Enabled {
		publisher = events.NewPublisher(tmKafka.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		orchCfg.Publisher = publisher
		hlog.Infof("Publishing task events to %s", cfg.Kafka.Topic)
	}

	orchestrator, err := services.NewOrchestrator(orchCfg)
	if err != nil {
		hlog.Fatalf("Failed to initialize template backends: %v", err)
	}

	var janitor *services.JanitorService
	if cfg.Janitor.Enabled && cfg.Local.Enabled {
		janitor, err = services.NewJanitorService(cfg.Local.OutputDir, local.OutputPrefix,
			cfg.Janitor.Interval, cfg.Janitor.Retention, clockwork.NewRealClock())
		if err != nil {
			hlog.Fatalf("Failed to create output janitor: %v", err)
		}
		if err := janitor.Start(); err != nil {
			hlog.Fatalf("Failed to start output janitor: %v", err)
		}
	}

	var grpcServer *grpc.Server
	if cfg.GRPC.Enabled {
		grpcServer = startHealthServer(cfg.GRPC.Addr)
	}

	h := server.Default(server.WithHostPorts(cfg.Server.Addr), server.WithExitWaitTime(cfg.Server.ExitWait))
	api.RegisterRoutes(h, api.NewHandler(orchestrator))

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		hlog.Infof("Received signal: %s. Initiating graceful shutdown...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			hlog.Errorf("Hertz server shutdown error: %v", err)
		} else {
			hlog.Info("Hertz server gracefully stopped.")
		}

		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		if janitor != nil {
			janitor.Stop()
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				hlog.Errorf("Kafka producer close error: %v", err)
			}
		}
		hlog.Info("Template API gracefully shut down.")
	}()

	hlog.Infof("Template API listening on %s (default client %s)", cfg.Server.Addr, orchestrator.DefaultClient())
	h.Spin()
	return nil
}

// startHealthServer serves grpc.health.v1 on addr.
func startHealthServer(addr string) *grpc.Server {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		hlog.Fatalf("Failed to listen for gRPC on %s: %v", addr, err)
	}
	s := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s, hs)

	go func() {
		hlog.Infof("gRPC health server listening on %s", addr)
		if err := s.Serve(lis); err != nil {
			hlog.Errorf("gRPC server stopped: %v", err)
		}
	}()
	return s
}

func hlogLevel(level string) hlog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return hlog.LevelTrace
	case "debug":
		return hlog.LevelDebug
	case "warn", "warning":
		return hlog.LevelWarn
	case "error":
		return hlog.LevelError
	default:
		return hlog.LevelInfo
	}
}
