// Package astreus is the top-level entry point: it wires configuration,
// storage backends, the embedding provider, conversation memory and the
// retrieval engine together with minimal boilerplate.
//
// Usage:
//
//	import "github.com/astreus-ai/astreus-go"
//
//	eng, err := astreus.New(astreus.WithOpenAI("text-embedding-3-small"))
//	eng, err := astreus.New(astreus.WithSQLite("astreus.db"), astreus.WithOpenAI(""))
//	eng, err := astreus.New(astreus.WithConfigFile("astreus.yaml"))
//
// Without an embedding provider the engine still offers conversation
// memory; semantic search and document retrieval need one.
package astreus

import (
	"os"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astreus-ai/astreus-go/config"
	"github.com/astreus-ai/astreus-go/embedding"
	"github.com/astreus-ai/astreus-go/memory"
	"github.com/astreus-ai/astreus-go/rag"
	"github.com/astreus-ai/astreus-go/types"
)

// Engine bundles the memory and retrieval subsystems built by New.
type Engine struct {
	// Memory is the conversation memory engine. Always present.
	Memory *memory.Memory

	// Sessions hands out session-scoped views over Memory.
	Sessions *memory.SessionManager

	// RAG is the document retrieval engine. Nil when no embedding
	// provider is configured.
	RAG *rag.RAG

	logger *zap.Logger
}

// Option configures the engine created by New.
type Option func(*options)

type options struct {
	cfg        *config.Config
	configFile string
	provider   embedding.Provider
	backend    memory.Backend
	db         *gorm.DB
	sqlitePath string
	logger     *zap.Logger

	apiKey string
	openai bool
}

// WithConfig supplies a pre-built configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithEmbeddingProvider sets a pre-built embedding provider.
func WithEmbeddingProvider(p embedding.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithOpenAI configures an OpenAI embedding provider. model may be
// empty to use the configured default. The API key is read from
// OPENAI_API_KEY unless WithAPIKey overrides it.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.openai = true
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if model != "" {
			if o.cfg == nil {
				o.cfg = config.Default()
			}
			o.cfg.Embedding.Model = model
		}
	}
}

// WithAPIKey overrides the API key used by WithOpenAI.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithMemoryBackend sets a pre-built memory backend.
func WithMemoryBackend(b memory.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithGorm persists memory and documents through an existing GORM
// connection.
func WithGorm(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

// WithSQLite persists memory and documents in a sqlite database at the
// given path. ":memory:" works for throwaway engines.
func WithSQLite(path string) Option {
	return func(o *options) { o.sqlitePath = path }
}

// WithLogger sets a custom zap logger. Defaults to the logger built
// from the Log configuration section.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New builds an Engine from the given options.
func New(opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil && o.configFile != "" {
		loaded, err := config.NewLoader().WithConfigPath(o.configFile).Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.Default()
	}

	logger := o.logger
	if logger == nil {
		logger = config.NewLogger(cfg.Log)
	}

	provider := o.provider
	if provider == nil && o.openai {
		if o.apiKey == "" {
			return nil, types.NewError(types.ErrConfiguration,
				"openai api key is required: set OPENAI_API_KEY or use WithAPIKey")
		}
		embCfg := cfg.Embedding
		embCfg.APIKey = o.apiKey
		built, err := embCfg.BuildProvider()
		if err != nil {
			return nil, err
		}
		provider = built
	}

	db := o.db
	if db == nil && o.sqlitePath != "" {
		opened, err := gorm.Open(sqlite.Open(o.sqlitePath), &gorm.Config{})
		if err != nil {
			return nil, types.NewError(types.ErrStorage, "open sqlite database").WithCause(err)
		}
		db = opened
	}

	backend := o.backend
	if backend == nil {
		switch {
		case cfg.Redis.Enabled:
			store, err := memory.NewRedisStore(cfg.Redis.StoreConfig(), logger)
			if err != nil {
				return nil, err
			}
			backend = store
		case db != nil:
			store, err := memory.NewGormStore(db, memory.GormStoreConfig{TableName: cfg.Memory.TableName}, logger)
			if err != nil {
				return nil, err
			}
			backend = store
		default:
			backend = memory.NewInMemoryStore()
		}
	}

	memCfg := cfg.Memory
	memCfg.EnableEmbeddings = provider != nil
	mem, err := memory.New(backend, provider, memCfg, logger)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		Memory:   mem,
		Sessions: memory.NewSessionManager(mem),
		logger:   logger,
	}

	// Retrieval needs embeddings; without a provider the engine is
	// memory-only.
	if provider != nil {
		var store rag.DocumentStore
		if db != nil {
			gs, err := rag.NewGormDocumentStore(db, rag.GormDocumentStoreConfig{TableName: cfg.RAG.TableName}, logger)
			if err != nil {
				return nil, err
			}
			store = gs
		} else {
			store = rag.NewInMemoryDocumentStore(logger)
		}

		tokenizer := rag.NewTiktokenTokenizer("", logger)
		engine, err := rag.New(store, provider, cfg.RAG, tokenizer, logger)
		if err != nil {
			return nil, err
		}
		eng.RAG = engine
	}

	return eng, nil
}

// Close releases the engine's storage resources.
func (e *Engine) Close() error {
	return e.Memory.Close()
}
