package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/insuredocs/docquery/internal/api/handlers"
	"github.com/insuredocs/docquery/internal/api/middleware"
	"github.com/insuredocs/docquery/internal/auth"
	"github.com/insuredocs/docquery/internal/cache"
	"github.com/insuredocs/docquery/internal/config"
	"github.com/insuredocs/docquery/internal/conversation"
	"github.com/insuredocs/docquery/internal/document"
	"github.com/insuredocs/docquery/internal/embedding"
	"github.com/insuredocs/docquery/internal/indexstore"
	"github.com/insuredocs/docquery/internal/jobs"
	"github.com/insuredocs/docquery/internal/llm"
	"github.com/insuredocs/docquery/internal/rag"
	"github.com/insuredocs/docquery/internal/storage"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	jwt   *auth.JWTMiddleware
	llmGW llm.Gateway
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		jwt:   auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		llmGW: llm.NewGateway(cfg.LLM),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	bus := cache.NewProgressBus(rt.redis)
	queue := jobs.NewPostgresStore(rt.db, bus, rt.cfg.Pipeline.MaxRetries)
	blobs := storage.NewHTTPStore(rt.cfg.Storage.BaseURL, rt.cfg.Storage.ServiceKey, rt.cfg.Storage.Bucket)
	index := indexstore.NewPgVectorStore(rt.db)
	docSvc := document.NewService(rt.db, blobs, queue, index)
	convSvc := conversation.NewService(rt.db)

	embedder := embedding.NewService(rt.llmGW, rt.cfg.LLM.EmbeddingModel, rt.cfg.Retrieval.SchemaVersion)
	var reranker rag.Reranker
	if rt.cfg.Retrieval.RerankURL != "" {
		reranker = rag.NewHTTPReranker(rt.cfg.Retrieval.RerankURL, rt.cfg.Retrieval.RerankTimeout)
	}
	retriever := rag.NewRetriever(embedder, index, cache.NewCache(rt.redis), reranker, rt.cfg.Retrieval)
	classifier := rag.NewClassifier(rt.cfg.Confidence)
	prompts := rag.NewPromptBuilder(rt.cfg.Retrieval.HistoryWindow, rt.cfg.Retrieval.HistoryBudget)
	answerer := rag.NewAnswerer(retriever, classifier, prompts, rt.llmGW)

	docHandler := handlers.NewDocumentsHandler(docSvc)
	jobHandler := handlers.NewJobsHandler(queue, bus)
	queryHandler := handlers.NewQueryHandler(docSvc, convSvc, answerer, rt.cfg.Retrieval.HistoryWindow, rt.cfg.Pipeline.StructuredSchema)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docHandler.Upload)
			r.Get("/", docHandler.List)
			r.Get("/{id}", docHandler.Get)
			r.Delete("/{id}", docHandler.Delete)
			r.Post("/{id}/reprocess", docHandler.Reprocess)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/{id}", jobHandler.Get)
			r.Get("/{id}/progress", jobHandler.Progress)
		})

		r.Post("/query", queryHandler.Query)
	})

	return r
}
