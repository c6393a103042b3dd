package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/gin-gonic/gin"

	"consensus-backend/internal/analyses"
	"consensus-backend/internal/consensus"
	"consensus-backend/internal/llm"
	"consensus-backend/internal/llm/deepseek"
	"consensus-backend/internal/llm/gemini"
	"consensus-backend/internal/services/health"
	"consensus-backend/internal/shared/auth"
	"consensus-backend/internal/shared/config"
	"consensus-backend/internal/shared/server"
	"consensus-backend/internal/shared/storage/db"
)

// App holds shared dependencies.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Firestore       *firestore.Client
	AnalysesRepo    analyses.Repo
	Adapters        llm.Registry
	Coordinator     *consensus.Coordinator
	AnalysesService *analyses.Service
	AnalysisHandler *analyses.Handler
	Health          *health.Service
	Signer          *auth.Signer

	closers []func() error
}

// Build prepares the job store, provider adapters, service, and router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()
	app := &App{Config: cfg}

	if err := buildStore(ctx, app); err != nil {
		app.Close()
		return nil, err
	}

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.Env)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Signer = signer

	adapters, closers, err := BuildAdapters(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, closers...)
	app.Adapters = adapters

	app.Coordinator = consensus.NewCoordinator(adapters, consensus.NewHeuristicScorer(nil))
	app.AnalysesService = analyses.NewService(app.AnalysesRepo, app.Coordinator, analyses.Options{
		Providers:            adapters.Names(),
		DefaultProviders:     cfg.DefaultProviders,
		FrameworkConcurrency: cfg.FrameworkConcurrency,
	})
	app.AnalysisHandler = analyses.NewHandler(app.AnalysesService)
	if app.AnalysisHandler == nil {
		app.Close()
		return nil, errors.New("failed to initialize handlers")
	}

	app.Health = buildHealth(app)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		AnalysisHandler: app.AnalysisHandler,
		Health:          app.Health,
		Signer:          app.Signer,
	})
	return app, nil
}

// BuildAdapters constructs every provider adapter from cfg. The returned
// closers release provider clients.
func BuildAdapters(ctx context.Context, cfg config.Config) (llm.Registry, []func() error, error) {
	ds, err := deepseek.NewClient(deepseek.Config{
		APIKey:  cfg.DeepSeekAPIKey,
		BaseURL: cfg.DeepSeekBaseURL,
		Model:   cfg.DeepSeekModel,
		Timeout: cfg.DeepSeekTimeout,
		Offline: cfg.DemoMode,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("deepseek adapter: %w", err)
	}
	gm, err := gemini.NewClient(ctx, gemini.Config{
		ProjectID:       cfg.GeminiProjectID,
		Region:          cfg.VertexRegion,
		Model:           cfg.GeminiModel,
		CredentialsFile: cfg.GoogleCredentialsFile,
		Offline:         cfg.DemoMode,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gemini adapter: %w", err)
	}
	if cfg.DemoMode {
		log.Printf("bootstrap: DEMO_MODE enabled; providers return canned analyses")
	}
	return llm.NewRegistry(ds, gm), []func() error{gm.Close}, nil
}

func buildStore(ctx context.Context, app *App) error {
	cfg := app.Config
	switch cfg.JobStore {
	case config.StorePostgres:
		sqlDB, err := buildDB(ctx, cfg)
		if err != nil {
			return err
		}
		if sqlDB == nil {
			app.AnalysesRepo = analyses.NewMemoryRepo()
			return nil
		}
		app.DB = sqlDB
		app.closers = append(app.closers, sqlDB.Close)
		app.AnalysesRepo = &analyses.PGRepo{DB: sqlDB}
	case config.StoreFirestore:
		client, err := analyses.NewFirestoreClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return err
		}
		app.Firestore = client
		app.closers = append(app.closers, client.Close)
		app.AnalysesRepo = &analyses.FirestoreRepo{Client: client, Collection: cfg.FirestoreCollection}
	default:
		log.Printf("bootstrap: using in-memory job store")
		app.AnalysesRepo = analyses.NewMemoryRepo()
	}
	return nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory job store")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required for JOB_STORE=postgres")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err == nil {
		if err = db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			err = fmt.Errorf("run migrations: %w", err)
		}
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database setup failed; using in-memory job store: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildHealth(a *App) *health.Service {
	svc := health.NewService()
	if a.DB != nil {
		svc.Register("job_store", a.DB.PingContext)
	}
	if repo, ok := a.AnalysesRepo.(*analyses.FirestoreRepo); ok {
		svc.Register("job_store", repo.Ping)
	}
	return svc
}

// Close waits for background runs and releases store and provider clients.
func (a *App) Close() {
	if a.AnalysesService != nil {
		a.AnalysesService.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("bootstrap: close: %v", err)
		}
	}
	a.closers = nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
