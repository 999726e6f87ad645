package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/depscan-io/depscan/internal/application"
	appai "github.com/depscan-io/depscan/internal/application/ai"
	appauth "github.com/depscan-io/depscan/internal/application/auth"
	appintegrations "github.com/depscan-io/depscan/internal/application/integrations"
	appscans "github.com/depscan-io/depscan/internal/application/scans"
	"github.com/depscan-io/depscan/internal/config"
	domai "github.com/depscan-io/depscan/internal/domain/ai"
	"github.com/depscan-io/depscan/internal/domain/analyses"
	domintegrations "github.com/depscan-io/depscan/internal/domain/integrations"
	domscans "github.com/depscan-io/depscan/internal/domain/scans"
	domusers "github.com/depscan-io/depscan/internal/domain/users"
	"github.com/depscan-io/depscan/internal/domain/vulns"
	openaiClient "github.com/depscan-io/depscan/internal/infra/ai/openai"
	"github.com/depscan-io/depscan/internal/infra/cicd"
	mysqlp "github.com/depscan-io/depscan/internal/infra/db/mysql"
	postgresp "github.com/depscan-io/depscan/internal/infra/db/postgres"
	"github.com/depscan-io/depscan/internal/infra/executor/depcheck"
	"github.com/depscan-io/depscan/internal/infra/httpserver"
	minioStore "github.com/depscan-io/depscan/internal/infra/storage"
	"github.com/depscan-io/depscan/internal/middleware"
)

// repositories groups the per-driver implementations behind the domain ports.
type repositories struct {
	scans        domscans.Repository
	vulns        vulns.Repository
	users        domusers.Repository
	integrations domintegrations.Repository
	analyses     analyses.Repository
}

func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	db, repos, err := connectDatabase(ctx, cfg)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer db.Close()

	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	runner := depcheck.NewRunner(
		cfg.Scanner.CLIPath,
		cfg.Scanner.DataDir,
		cfg.Scanner.NVDAPIKey,
		time.Duration(cfg.Scanner.TimeoutMinutes)*time.Minute,
	)

	clock := application.SystemClock{}
	metrics := middleware.NewMetrics()

	scansSvc := appscans.NewService(
		repos.scans, repos.vulns, runner, store, clock,
		cfg.Scanner.UploadsDir, cfg.Scanner.ReportsDir,
		cfg.MaxUploadBytes(), cfg.Scanner.MaxConcurrent,
	)
	scansSvc.Observer = metrics

	var aiClient domai.Client
	if cfg.AI.APIKey != "" {
		aiClient = openaiClient.NewClient(cfg.AI.APIKey, cfg.AI.Model)
	} else {
		log.Println("AI_API_KEY not set, false-positive analysis disabled")
	}
	aiSvc := &appai.Service{
		Client:   aiClient,
		Scans:    repos.scans,
		Vulns:    repos.vulns,
		Analyses: repos.analyses,
		Clock:    clock,
	}

	authSvc := &appauth.Service{
		Repo:      repos.users,
		JWTSecret: []byte(cfg.Auth.JWTSecret),
		TokenTTL:  time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
		Clock:     clock,
	}

	integrationsSvc := &appintegrations.Service{
		Repo:   repos.integrations,
		Client: cicd.NewClient(),
		Clock:  clock,
	}

	handler := httpserver.NewRouter(
		authSvc, scansSvc, aiSvc, integrationsSvc,
		[]byte(cfg.Auth.JWTSecret), cfg.MaxUploadBytes(),
		httpserver.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Metrics:        metrics,
			HealthCheckers: map[string]middleware.HealthChecker{
				"database": &middleware.DatabaseHealthChecker{DB: db},
				"storage":  &middleware.PingHealthChecker{Ping: store.Ping},
			},
		},
	)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s (db=%s)", addr, cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func connectDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, repositories, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, repositories{}, err
		}
		if err := postgresp.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, repositories{}, err
		}
		return db, repositories{
			scans:        postgresp.NewScanRepository(db),
			vulns:        postgresp.NewVulnRepository(db),
			users:        postgresp.NewUserRepository(db),
			integrations: postgresp.NewIntegrationRepository(db),
			analyses:     postgresp.NewAnalysisRepository(db),
		}, nil
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, repositories{}, err
		}
		if err := mysqlp.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, repositories{}, err
		}
		return db, repositories{
			scans:        mysqlp.NewScanRepository(db),
			vulns:        mysqlp.NewVulnRepository(db),
			users:        mysqlp.NewUserRepository(db),
			integrations: mysqlp.NewIntegrationRepository(db),
			analyses:     mysqlp.NewAnalysisRepository(db),
		}, nil
	}
}
