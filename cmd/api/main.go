package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"fincore.org/internal/access"
	"fincore.org/internal/httpapi"
	"fincore.org/internal/identity"
	"fincore.org/internal/obs"
	"fincore.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("FINCORE_COMMIT"))

	dsn := os.Getenv("FINCORE_PG_DSN")
	if dsn == "" {
		log.Fatal("missing FINCORE_PG_DSN")
	}
	secret := os.Getenv("FINCORE_AUTH_SECRET")
	if secret == "" {
		log.Fatal("missing FINCORE_AUTH_SECRET")
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	var codecOpts []identity.CodecOption
	if ttl := envDuration("FINCORE_ACCESS_TTL"); ttl > 0 {
		codecOpts = append(codecOpts, identity.WithAccessTTL(ttl))
	}
	if ttl := envDuration("FINCORE_REFRESH_TTL"); ttl > 0 {
		codecOpts = append(codecOpts, identity.WithRefreshTTL(ttl))
	}
	if leeway := envDuration("FINCORE_TOKEN_LEEWAY"); leeway > 0 {
		codecOpts = append(codecOpts, identity.WithLeeway(leeway))
	}
	codec, err := identity.NewTokenCodec(secret, codecOpts...)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	svc, err := identity.NewService(store, codec)
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}
	resolver, err := identity.NewContextResolver(store)
	if err != nil {
		log.Fatalf("context resolver: %v", err)
	}
	admin, err := identity.NewAdminService(store)
	if err != nil {
		log.Fatalf("admin service: %v", err)
	}
	policies := access.NewService(store, store)
	engine := access.NewEngine(store, store)

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, svc, resolver, admin, policies, engine)

	addr := os.Getenv("FINCORE_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting fincore-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

// envDuration parses an env var as seconds or a Go duration string.
func envDuration(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("parse %s: %v", name, err)
	}
	return d
}
