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

	"pontual.org/internal/audit"
	"pontual.org/internal/config"
	"pontual.org/internal/directory"
	"pontual.org/internal/facial"
	"pontual.org/internal/httpapi"
	"pontual.org/internal/oauth"
	"pontual.org/internal/obs"
	"pontual.org/internal/punch"
	"pontual.org/internal/token"
)

var version = "1.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	obs.Init()

	// Postgres when a DSN is configured; in-memory stores otherwise
	// (single-node evaluation setups, integration tests).
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var (
		dir       directory.Store
		auditSink audit.Store
		oauthSt   oauth.Store
		punchSt   punch.Store
		zones     punch.ZoneStore
		prints    facial.TemplateStore
	)
	if db != nil {
		dir = directory.NewPGStore(db)
		auditSink = audit.NewPGStore(db)
		oauthSt = oauth.NewPGStore(db)
		punchSt = punch.NewPGStore(db)
		zones = punch.NewPGZoneStore(db)
		prints = facial.NewPGTemplateStore(db)
	} else {
		log.Print("no PONTUAL_PG_DSN set, using in-memory stores")
		dir = directory.NewMemory()
		auditSink = audit.NewMemory()
		oauthSt = oauth.NewMemory()
		punchSt = punch.NewMemoryStore()
		zones = punch.StaticZones(nil)
		prints = facial.StaticTemplates(nil)
	}

	recorder := audit.NewRecorder(auditSink)

	codec, err := token.NewCodec(cfg.HMACSecret, cfg.Issuer,
		token.WithLegacyTTL(cfg.LegacyTokenTTL))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	tokens := oauth.NewService(oauthSt, dir, recorder,
		oauth.WithAccessTTL(cfg.AccessTokenTTL),
		oauth.WithRefreshTTL(cfg.RefreshTokenTTL),
	)

	engine := punch.NewEngine(punchSt,
		punch.WithDuplicateWindow(cfg.DuplicateWindow))

	matcher := facial.NewClient(cfg.FaceMatcherURL,
		facial.WithTimeout(cfg.MatcherTimeout))

	gate := punch.NewGate(dir, engine, recorder, []byte(cfg.HMACSecret),
		punch.WithQRWindow(cfg.QRCodeWindow),
		punch.WithFaceMatcher(matcher, cfg.FaceThreshold),
		punch.WithFingerprints(prints, cfg.FingerprintThreshold),
		punch.WithGeofence(zones, cfg.RequireGeolocation, cfg.RequireGeofence),
		punch.WithMethodEnabled(punch.MethodCode, cfg.EnableCodePunch),
		punch.WithMethodEnabled(punch.MethodQR, cfg.EnableQRCodePunch),
		punch.WithMethodEnabled(punch.MethodFacial, cfg.EnableFacialPunch),
		punch.WithMethodEnabled(punch.MethodFingerprint, cfg.EnableFingerprintPunch),
	)

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(httpapi.Deps{
		Directory:          dir,
		Codec:              codec,
		Tokens:             tokens,
		Gate:               gate,
		Engine:             engine,
		Punches:            punchSt,
		Zones:              zones,
		Audit:              recorder,
		ReadyProbe:         probe,
		Version:            version,
		LoginTokenTTL:      cfg.AccessTokenTTL,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.GRPCAddr != "" {
		grpcSrv := httpapi.NewGRPCServer(probe)
		go func() {
			log.Printf("gRPC health on %s", cfg.GRPCAddr)
			if err := grpcSrv.Serve(ctx, cfg.GRPCAddr); err != nil {
				log.Fatalf("grpc: %v", err)
			}
		}()
	}

	log.Printf("Starting pontual-api %s on %s", version, srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
