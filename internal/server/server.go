package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/cartonhq/carton/internal/queue"
	mid "github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/util"
	s3doc "github.com/cartonhq/carton/pkg/docstore/s3"
	graphneo "github.com/cartonhq/carton/pkg/graphdb/neo4j"
	"github.com/cartonhq/carton/pkg/logger"
	"github.com/cartonhq/carton/pkg/namespace"
	"github.com/cartonhq/carton/pkg/orchestrator"
	pgxstore "github.com/cartonhq/carton/pkg/store/pgx"
	"github.com/cartonhq/carton/pkg/triage"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	jwksUrl := util.GetEnv("AUTH_URL") + "/jwks"
	k, err := keyfunc.NewDefault([]string{jwksUrl})
	if err != nil {
		logger.Fatal("Failed to load jwks keys", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := util.GetEnv("DATABASE_URL")
	if err := pgxstore.Migrate(strings.Replace(databaseURL, "postgres://", "pgx5://", 1)); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer pool.Close()

	orch := BuildOrchestrator(ctx, pool)

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	masterAPIKey := util.GetEnv("MASTER_API_KEY")
	masterUserID, _ := strconv.ParseInt(util.GetEnv("MASTER_USER_ID"), 10, 64)
	masterUserRole := util.GetEnv("MASTER_USER_ROLE")

	app := &mid.App{
		Orchestrator:   orch,
		Queue:          ch,
		Key:            &k,
		MasterAPIKey:   masterAPIKey,
		MasterUserID:   masterUserID,
		MasterUserRole: masterUserRole,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(echomw.CORS())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("8M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// BuildOrchestrator wires the canonical store, document store, graph
// projection, namespace locker and triage policy from the environment. The
// worker uses the same wiring.
func BuildOrchestrator(ctx context.Context, pool *pgxpool.Pool) *orchestrator.Orchestrator {
	st := pgxstore.New(pool)

	s3Client, err := s3doc.NewClient(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}
	docs := s3doc.New(s3Client, util.GetEnvString("AWS_BUCKET", "carton"))

	driver, err := graphneo.NewDriver(
		util.GetEnv("NEO4J_URI"),
		util.GetEnv("NEO4J_USER"),
		util.GetEnv("NEO4J_PASSWORD"),
	)
	if err != nil {
		logger.Fatal("Failed to connect to Neo4j", "err", err)
	}
	graph := graphneo.New(driver)

	locker := namespace.NewPgLocker(pool)

	var policy triage.Policy
	if model := util.GetEnv("AI_TRIAGE_MODEL"); model != "" {
		policy = triage.NewOpenAIPolicy(triage.NewOpenAIPolicyParams{
			BaseURL: util.GetEnv("AI_CHAT_URL"),
			APIKey:  util.GetEnv("AI_CHAT_KEY"),
			Model:   model,
		})
	} else {
		policy = triage.NewRulePolicy()
	}

	cfg := orchestrator.DefaultConfig()
	cfg.DedupeThreshold = util.GetEnvFloat("DEDUPE_THRESHOLD", cfg.DedupeThreshold)
	cfg.BlockOnManualEdges = util.GetEnvBool("BLOCK_ON_MANUAL_EDGES", false)
	cfg.ScanParallelism = util.GetEnvInt("SCAN_PARALLELISM", cfg.ScanParallelism)
	cfg.Scanner.FuzzyThreshold = util.GetEnvFloat("FUZZY_THRESHOLD", cfg.Scanner.FuzzyThreshold)
	cfg.Scanner.FuzzyRepeatFloor = util.GetEnvInt("FUZZY_REPEAT_FLOOR", cfg.Scanner.FuzzyRepeatFloor)

	return orchestrator.New(cfg, st, docs, graph, locker, policy)
}
