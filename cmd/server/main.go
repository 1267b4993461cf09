package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxly/config"
	"taxly/internal/database"
	"taxly/internal/router"
	"taxly/pkg/encryption"
	"taxly/pkg/nicepay"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}
	cfg := config.Load()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	database.SeedAdmin(db)

	enc, err := encryption.New(cfg.Encryption.MasterKey)
	if err != nil {
		log.Fatalf("encryption: %v", err)
	}

	var gateway nicepay.Client
	if cfg.Nicepay.ClientID != "" {
		gateway = nicepay.NewHTTPClient(cfg.Nicepay.ClientID, cfg.Nicepay.SecretKey, cfg.Nicepay.APIURL, cfg.Nicepay.Timeout)
	} else {
		log.Println("[nicepay] NICEPAY_CLIENT_ID not set, using stub gateway")
		gateway = nicepay.NewStub()
	}

	engine := router.Setup(cfg, db, gateway, enc)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server shutdown:", err)
	}
	fmt.Println("server stopped")
}
