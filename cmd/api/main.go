package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"utilitygrid.org/internal/authz"
	"utilitygrid.org/internal/config"
	"utilitygrid.org/internal/httpapi"
	"utilitygrid.org/internal/identity"
	"utilitygrid.org/internal/membership"
	"utilitygrid.org/internal/obs"
	"utilitygrid.org/internal/quote"
	"utilitygrid.org/internal/token"
	"utilitygrid.org/internal/utility"
)

var version = "0.3.0"

func main() {
	_ = godotenv.Load()
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	identityStore := identity.NewPGStore(db)
	users := identityStore.Users()

	identities, err := identity.NewService(users, identityStore.OTPs())
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}
	tokens, err := token.NewService(token.NewPGStore(db), users,
		cfg.AccessSecret, cfg.RefreshSecret,
		token.WithIssuer(cfg.Issuer),
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	memberships, err := membership.NewService(membership.NewPGStore(db), users,
		membership.WithAutoCreateFirstSite(cfg.AutoCreateFirstSite),
	)
	if err != nil {
		log.Fatalf("membership service: %v", err)
	}
	utilities, err := utility.NewService(utility.NewPGStore(db), memberships)
	if err != nil {
		log.Fatalf("utility service: %v", err)
	}
	quotes, err := quote.NewService(quote.NewPGStore(db), memberships, users)
	if err != nil {
		log.Fatalf("quote service: %v", err)
	}
	engine, err := authz.NewEngine(tokens, memberships)
	if err != nil {
		log.Fatalf("authz engine: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Probe:         httpapi.ReadyProbe{DB: db},
		Version:       version,
		Engine:        engine,
		Identities:    identities,
		Tokens:        tokens,
		Memberships:   memberships,
		Utilities:     utilities,
		Quotes:        quotes,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting utilitygrid-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
