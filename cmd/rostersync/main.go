package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	v1 "rostersync/api/v1"
	"rostersync/internal/auth"
	"rostersync/internal/cache"
	"rostersync/internal/config"
	"rostersync/internal/db"
	"rostersync/internal/lmsclient"
	"rostersync/internal/scheduler"
	syncengine "rostersync/internal/sync"
	"rostersync/internal/ws"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("✓ Configuration loaded")

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	baseLogger := logger.WithField("app", "rostersync")

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.GetDB()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	// 3. Initialize Redis
	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer cache.Close()

	// 4. Initialize JWT
	auth.InitJWT(cfg.JWT.Secret)

	// 5. Initialize Socket.IO server
	if err := ws.InitServer(); err != nil {
		log.Fatalf("Failed to initialize WebSocket server: %v", err)
	}

	// 6. Wire the sync engine: LMS client, processor, work queue, scheduler
	client := lmsclient.NewClient(time.Duration(cfg.LMS.TimeoutSec) * time.Second)
	processor := syncengine.NewProcessor(db.GetDB(), client, syncengine.Options{
		CSVRoot:            cfg.CSVRoot,
		CommitChunkSize:    cfg.Commit.ChunkSize,
		ApplyBatchSize:     cfg.Applier.BatchSize,
		ParallelMultiplier: cfg.Applier.ParallelMultiplier,
	}, ws.DistrictPublisher{}, baseLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := scheduler.NewQueue(cfg.Scheduler.Consumers*4, baseLogger)
	for i := 0; i < cfg.Scheduler.Consumers; i++ {
		go queue.Run(ctx, processor)
	}

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(&scheduler.Config{
			DB:          db.GetDB(),
			Queue:       queue,
			Logger:      baseLogger,
			IntervalSec: cfg.Scheduler.IntervalSec,
		})
		sched.Start()
		defer sched.Stop()
	}

	// 7. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// Socket.IO endpoint with JWT handshake validation
	socketHandler := ws.WrapWithAuth(ws.Server)
	r.GET("/socket.io/*any", gin.WrapH(socketHandler))
	r.POST("/socket.io/*any", gin.WrapH(socketHandler))

	// Setup API v1 routes
	v1.SetupRouter(r, db.GetDB(), cfg)

	log.Printf("✓ Server starting on %s", cfg.HTTPAddr)

	go func() {
		if err := r.Run(cfg.HTTPAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Shut down workers cleanly on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")
	cancel()
}
