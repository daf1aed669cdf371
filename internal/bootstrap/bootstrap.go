// Package bootstrap assembles a System from environment variables: the
// logger, tracer/metrics backend, persistence store, retrieval sources,
// and generation backend cmd/veritas-server and cmd/veritas-cli both need
// but neither should construct by hand. Grounded on
// cmd/common/system.go's System/init* shape — one struct, one init method
// per subsystem, each falling back to the cheapest usable default instead
// of failing startup when an optional integration isn't configured.
package bootstrap

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	qdrant "github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/generation"
	"github.com/veritas-eu/orchestrator-core/persistence"
	"github.com/veritas-eu/orchestrator-core/retrieval"
	"github.com/veritas-eu/orchestrator-core/telemetry"
)

// System holds every env-configurable collaborator the service layer
// wires into a Service. Fields are never nil after New returns: each
// init step falls back to an in-memory or no-op implementation.
type System struct {
	Config     *core.Config
	Logger     core.Logger
	Telemetry  core.Telemetry
	Registry   *prometheus.Registry
	Meter      *telemetry.Meter
	Store      persistence.Store
	Generation generation.Interface
	Retriever  *retrieval.Retriever
}

// New reads the process environment and builds a System. Errors are
// reserved for configuration that is present but invalid (e.g. an
// unparsable VERITAS_DATABASE_URL); an absent optional integration is never an
// error, only a fallback.
func New(cfg *core.Config) (*System, error) {
	s := &System{Config: cfg}

	s.Logger = telemetry.NewZapLogger()
	s.Registry = prometheus.NewRegistry()
	s.Meter = telemetry.NewMeter(s.Registry)
	s.Telemetry = telemetry.NewTracer(s.Meter)

	if err := s.initStore(); err != nil {
		return nil, fmt.Errorf("bootstrap: store: %w", err)
	}
	s.initGeneration()
	if err := s.initRetriever(); err != nil {
		return nil, fmt.Errorf("bootstrap: retriever: %w", err)
	}
	return s, nil
}

func (s *System) initStore() error {
	addr := os.Getenv("VERITAS_REDIS_ADDR")
	if addr == "" {
		s.Store = persistence.NewMemoryStore()
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("VERITAS_REDIS_PASSWORD")})
	s.Store = persistence.NewRedisStore(client, s.Logger)
	return nil
}

func (s *System) initGeneration() {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		s.Logger.Warn("OPENAI_API_KEY not set, generation falls back to the mock adapter", nil)
		s.Generation = &generation.Mock{}
		return
	}
	model := os.Getenv("VERITAS_OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	llm, err := openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	if err != nil {
		s.Logger.Error("failed to construct openai llm, falling back to mock", map[string]interface{}{"error": err.Error()})
		s.Generation = &generation.Mock{}
		return
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		s.Logger.Error("failed to construct embedder, embeddings disabled", map[string]interface{}{"error": err.Error()})
	}
	s.Generation = generation.NewLangchainAdapter(llm, embedder, s.Logger)
}

// initRetriever adds a qdrant vector source and a SQL keyword source only
// when their env vars are present. No default source is wired: with
// neither configured the Retriever has no sub-sources and every retrieval
// fails.
func (s *System) initRetriever() error {
	opts := []retrieval.Option{}

	if host := os.Getenv("VERITAS_QDRANT_HOST"); host != "" {
		client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: qdrantPort(), APIKey: os.Getenv("VERITAS_QDRANT_API_KEY")})
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		collection := os.Getenv("VERITAS_QDRANT_COLLECTION")
		if collection == "" {
			collection = "veritas_documents"
		}
		opts = append(opts, retrieval.WithSource(retrieval.NewQdrantSource(client, collection, s.Generation, s.Logger), 1.0))
	}

	if dsn := os.Getenv("VERITAS_DATABASE_URL"); dsn != "" {
		db, err := retrieval.OpenPostgres(dsn)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		src, err := newSQLKeywordSource(db)
		if err != nil {
			return fmt.Errorf("sql source: %w", err)
		}
		opts = append(opts, retrieval.WithSource(src, 0.7))
	}

	if s.Config.Retrieval.Expand {
		opts = append(opts, retrieval.WithExpander(retrieval.NewGenerationQueryExpander(s.Generation, 3)))
	}
	if s.Config.Retrieval.RerankMode != core.RerankOff {
		opts = append(opts, retrieval.WithReranker(retrieval.NewLLMReranker(s.Generation, retrieval.DefaultRerankConfig(), s.Config.Retrieval.TopK)))
	}

	s.Retriever = retrieval.New(s.Config.Retrieval.RRFK, s.Logger, opts...)
	return nil
}

func newSQLKeywordSource(db *sqlx.DB) (*retrieval.SQLSource, error) {
	query := os.Getenv("VERITAS_SQL_SEARCH_QUERY")
	if query == "" {
		query = "SELECT document_id, content, section, metadata FROM documents " +
			"WHERE content ILIKE ? LIMIT ?"
	}
	return retrieval.NewSQLSource(db, query, os.Getenv("VERITAS_SQL_METADATA_JQ"))
}

func qdrantPort() int {
	if v := os.Getenv("VERITAS_QDRANT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 6334
}
