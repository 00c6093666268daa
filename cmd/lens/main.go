// Package main runs the save viewer: it loads a Palworld world directory,
// serves the snapshot over HTTP and pushes updates while the watcher runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cory-johannsen/palworld-lens/internal/api"
	"github.com/cory-johannsen/palworld-lens/internal/app"
	"github.com/cory-johannsen/palworld-lens/internal/broadcast"
	"github.com/cory-johannsen/palworld-lens/internal/config"
	"github.com/cory-johannsen/palworld-lens/internal/health"
	"github.com/cory-johannsen/palworld-lens/internal/loader"
	"github.com/cory-johannsen/palworld-lens/internal/observability"
	"github.com/cory-johannsen/palworld-lens/internal/server"
	"github.com/cory-johannsen/palworld-lens/internal/watch"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	saveDir := flag.String("save", "", "world save directory (overrides save.dir)")
	probe := flag.Duration("probe", 0, "wait up to this long for a running instance to report SERVING, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *saveDir != "" {
		cfg.Save.Dir = *saveDir
	}

	if *probe > 0 {
		os.Exit(runProbe(cfg.GRPC.Addr(), *probe))
	}

	logger, err := observability.NewLogger(cfg.Logging, "lens")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("initializing tracing", zap.Error(err))
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("flushing traces", zap.Error(err))
		}
	}()

	logger.Info("starting palworld lens",
		zap.String("save_dir", cfg.Save.Dir),
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.String("grpc_addr", cfg.GRPC.Addr()),
		zap.String("gamedata_source", cfg.Gamedata.Source),
	)

	pipeline, err := app.Build(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("assembling parse pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	ldr, err := pipeline.NewLoader(logger.Named("loader"), cfg.Save)
	if err != nil {
		logger.Fatal("creating loader", zap.Error(err))
	}

	// Reloads triggered by the watcher outlive any request.
	reloadCtx, cancelReloads := context.WithCancel(ctx)
	defer cancelReloads()

	ctrl := watch.NewController(logger.Named("watch"), cfg.Watch.Allowed && cfg.Save.Dir != "", cfg.Save.Dir,
		watch.Options{
			Debounce:     cfg.Watch.Debounce,
			StartupGrace: cfg.Watch.StartupGrace,
			PlayersDir:   cfg.Save.PlayersDir,
		},
		func() {
			if _, err := ldr.Reload(reloadCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("watch-triggered reload failed", zap.Error(err))
			}
		},
	)
	ctrl.OnChange(func(s watch.Status) {
		logger.Info("file watching changed", zap.Bool("active", s.Active))
	})

	hub := broadcast.New(logger.Named("broadcast"), ldr, broadcast.Options{
		BufferSize:        cfg.Broadcast.BufferSize,
		KeepaliveInterval: cfg.Broadcast.KeepaliveInterval,
		WatchActive:       func() bool { return ctrl.Status().Active },
	})

	reporter := health.NewReporter(logger.Named("health"))
	ldr.OnTransition(func(ev loader.Event) {
		hub.Publish(ev)
		reporter.Observe(ev)
		fields := []zap.Field{
			zap.String("from", string(ev.From)),
			zap.String("to", string(ev.To)),
			zap.Uint64("seq", ev.Seq),
		}
		if ev.Err != nil {
			logger.Warn("load state changed", append(fields, zap.Error(ev.Err))...)
			return
		}
		logger.Info("load state changed", fields...)
	})

	grpcServer := grpc.NewServer()
	reporter.Register(grpcServer)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      api.NewHandler(logger.Named("api"), ldr, ctrl, hub),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("loader", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			if cfg.Save.Dir == "" {
				logger.Info("no save directory configured; waiting for a reload request")
				<-ctx.Done()
				return nil
			}
			if _, err := ldr.Load(ctx, cfg.Save.Dir); err != nil {
				// The last error is reported through status; the server keeps running.
				logger.Error("initial load failed", zap.Error(err))
			}
			if cfg.Watch.AutoStart && ctrl.Status().Allowed {
				if err := ctrl.Start(); err != nil {
					logger.Warn("starting file watcher", zap.Error(err))
				}
			}
			<-ctx.Done()
			return nil
		},
		StopFn: cancelReloads,
	})
	lifecycle.Add("watch", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
		StopFn: ctrl.Stop,
	})
	lifecycle.Add("grpc", server.GRPCService(logger, grpcServer, cfg.GRPC.Addr()))
	lifecycle.Add("http", server.HTTPService(logger, httpServer))
	// Stopped before http so open event streams end and Shutdown can drain.
	lifecycle.Add("broadcast", &server.FuncService{
		StartFn: hub.Run,
		StopFn:  hub.Close,
	})
	if pipeline.Pool != nil {
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func(ctx context.Context) error {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if err := pipeline.Pool.Health(ctx, 5*time.Second); err != nil {
							logger.Warn("database health check failed", zap.Error(err))
						}
					}
				}
			},
		})
	}

	logger.Info("palworld lens initialized", zap.Duration("elapsed", time.Since(start)))

	err = lifecycle.Run(ctx)
	reporter.Shutdown()
	if err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// runProbe exits 0 once the health service reports SERVING.
func runProbe(addr string, timeout time.Duration) int {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "probe: %v\n", err)
		return 1
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := health.WaitForServing(ctx, conn, health.Service); err != nil {
		fmt.Fprintf(os.Stderr, "probe: %s not serving: %v\n", addr, err)
		return 1
	}
	fmt.Println("SERVING")
	return 0
}
