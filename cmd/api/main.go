package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/api"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/api/handlers"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/api/ws"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/attendance"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/config"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/directory"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/gallery"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/matcher"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/observability"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/queue"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/recognition"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/storage"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/vision"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting HRMS attendance API", "port", cfg.Server.Port, "driver", cfg.Database.Driver)

	loc, err := cfg.Attendance.Location()
	if err != nil {
		slog.Error("attendance timezone", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	checks := map[string]handlers.CheckFunc{"database": store.Ping}

	// MinIO (optional)
	var (
		minioStore *storage.MinIOStore
		objects    gallery.ObjectStore
		snapshots  handlers.ObjectGetter
	)
	if cfg.MinIO.Enabled() {
		minioStore, err = storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		objects = minioStore
		snapshots = minioStore
		checks["minio"] = minioStore.Ping
	}

	// Face models
	if err := vision.InitRuntime(cfg.Vision.ONNXRuntimeLib); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer vision.DestroyRuntime()

	provider, err := vision.NewProvider(cfg.Vision)
	if err != nil {
		slog.Error("load face models", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	// Gallery
	src, err := gallery.NewSource(cfg.Gallery, objects)
	if err != nil {
		slog.Error("gallery source", "error", err)
		os.Exit(1)
	}

	pg, _ := store.(*storage.PostgresStore)
	mirror := cfg.Vision.MatchBackend == config.MatchBackendPGVector && pg != nil

	reload := func(ctx context.Context) (*gallery.Gallery, error) {
		g, err := gallery.Load(ctx, src, provider, gallery.LoadOptions{Workers: cfg.Vision.EmbedWorkers})
		if err != nil {
			return nil, err
		}
		if mirror {
			if err := pg.ReplaceGalleryFaces(ctx, g.Entries()); err != nil {
				return nil, fmt.Errorf("sync pgvector gallery: %w", err)
			}
			slog.Info("pgvector gallery synced", "entries", g.Len())
		}
		return g, nil
	}

	initial, err := reload(ctx)
	if err != nil {
		slog.Error("load gallery", "error", err)
		os.Exit(1)
	}
	holder := gallery.NewHolder(initial, reload)

	var index matcher.Index = holder
	if mirror {
		index = pg.GalleryIndex()
	}
	slog.Info("matcher ready", "backend", cfg.Vision.MatchBackend, "threshold", cfg.Vision.MatchThreshold)

	ledger := attendance.NewLedger(store, store, loc)
	opts := []recognition.Option{}
	if minioStore != nil && cfg.MinIO.Snapshots {
		opts = append(opts, recognition.WithSnapshots(minioStore))
	}

	// NATS (optional): audit events out, live WebSocket broadcast in
	var hub *ws.Hub
	if cfg.NATS.Enabled() {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		opts = append(opts, recognition.WithPublisher(producer))
		checks["nats"] = func(context.Context) error { return producer.Ping() }

		hub = ws.NewHub()
		go hub.Run(ctx)

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create recognition consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeRecognitions(ctx, "api-broadcast", func(_ context.Context, e models.RecognitionEvent) error {
			hub.BroadcastEvent(&dto.WSEvent{
				Type: "recognition",
				Data: handlers.RecognitionEventResponse(e, loc),
			})
			return nil
		}, queue.ConsumeOptions{NewOnly: true})
		if err != nil {
			slog.Warn("start recognition consumer", "error", err)
		}
	}

	svc := recognition.NewService(
		provider,
		matcher.New(index, cfg.Vision.MatchThreshold),
		directory.NewResolver(store),
		ledger,
		opts...,
	)

	router := api.NewRouter(api.RouterConfig{
		Context:    ctx,
		APIKey:     cfg.Server.APIKey,
		RateLimit:  cfg.Server.RateLimit,
		Location:   loc,
		Recognizer: svc,
		Attendance: ledger,
		Events:     store,
		Snapshots:  snapshots,
		Gallery:    holder,
		Hub:        hub,
		Checks:     checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
