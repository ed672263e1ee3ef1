package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"teletable/cache"
	"teletable/config"
	"teletable/robot"
	"teletable/store"
	"teletable/table"
	"teletable/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "teletable.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("teletable", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("teletable: database open (%s)", cfg.Database.Driver)

	// Redis user cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("teletable: redis not available (%v), running without cache", err)
	} else {
		log.Printf("teletable: redis connected (%s)", cfg.Redis.Address)
	}
	cancel()
	defer redisClient.Close()
	userCache := cache.NewUserCache(redisClient)

	// Coordinator
	coord := robot.New(robot.Config{
		StaleTimeout:    cfg.Robot.StaleTimeout,
		LockTTL:         cfg.Robot.LockTTL,
		JanitorInterval: cfg.Robot.JanitorInterval,
		Client:          table.NewClient(cfg.Robot.HTTPTimeout),
	})
	coord.Start()
	defer coord.Stop()

	// UDP discovery
	discovery := table.NewDiscovery(cfg.Robot.DiscoveryPort, coord)
	if err := discovery.Start(); err != nil {
		log.Printf("teletable: discovery unavailable: %v", err)
	} else {
		defer discovery.Stop()
	}

	// Web server
	handler, stopWeb := www.NewRouter(db, userCache, coord, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("teletable: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("teletable: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("teletable: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("teletable: stopped")
}
