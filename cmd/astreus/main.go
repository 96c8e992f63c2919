// Command astreus is a small operational front end for the engine:
// it ingests documents into the retrieval store, runs searches and
// inspects conversation memory, all against the configured backends.
//
// Usage:
//
//	astreus ingest --config astreus.yaml file.txt [file2.txt ...]
//	astreus search --config astreus.yaml "query text"
//	astreus history --session chat-1
//	astreus stats
//	astreus version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	astreus "github.com/astreus-ai/astreus-go"
	"github.com/astreus-ai/astreus-go/config"
	"github.com/astreus-ai/astreus-go/rag"
	"github.com/astreus-ai/astreus-go/types"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "version":
		fmt.Printf("astreus %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `astreus — memory and retrieval engine CLI

Commands:
  ingest   ingest text files into the document store
  search   run a semantic search over ingested documents
  history  print a session's conversation history
  stats    print memory store statistics
  version  print version information
`)
}

// buildEngine loads configuration and wires the engine. Retrieval
// commands need OPENAI_API_KEY (or api_key in the config file).
func buildEngine(configPath, dbPath string, needEmbeddings bool) (*astreus.Engine, *zap.Logger) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fatal("load config: %v", err)
	}

	logger := config.NewLogger(cfg.Log)

	opts := []astreus.Option{
		astreus.WithConfig(cfg),
		astreus.WithLogger(logger),
	}
	if dbPath != "" {
		opts = append(opts, astreus.WithSQLite(dbPath))
	} else if cfg.Database.Driver == "sqlite" && cfg.Database.DSN != "" {
		opts = append(opts, astreus.WithSQLite(cfg.Database.DSN))
	}
	if needEmbeddings {
		opts = append(opts, astreus.WithOpenAI(""))
		if cfg.Embedding.APIKey != "" {
			opts = append(opts, astreus.WithAPIKey(cfg.Embedding.APIKey))
		}
	}

	eng, err := astreus.New(opts...)
	if err != nil {
		fatal("build engine: %v", err)
	}
	return eng, logger
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "sqlite database path (overrides config)")
	fs.Parse(args)

	files := fs.Args()
	if len(files) == 0 {
		fatal("ingest: at least one file is required")
	}

	eng, logger := buildEngine(*configPath, *dbPath, true)
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			fatal("read %s: %v", path, err)
		}
		doc, err := eng.RAG.Ingest(ctx, &types.Document{
			Title:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Content:  string(data),
			Metadata: map[string]any{"source": path},
		})
		if err != nil {
			var partial *rag.PartialIngestionError
			if errors.As(err, &partial) {
				logger.Warn("document partially ingested",
					zap.String("document_id", partial.DocumentID),
					zap.Int("unindexed_chunks", len(partial.Failed)))
			} else {
				fatal("ingest %s: %v", path, err)
			}
		}
		fmt.Printf("ingested %s as %s (%d chunks)\n", path, doc.ID, len(doc.Chunks))
	}
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "sqlite database path (overrides config)")
	limit := fs.Int("limit", 5, "maximum results")
	threshold := fs.Float64("threshold", 0, "minimum similarity score in [0,1]")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fatal("search: a query is required")
	}
	query := strings.Join(fs.Args(), " ")

	eng, _ := buildEngine(*configPath, *dbPath, true)
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	results, err := eng.RAG.Search(ctx, query, rag.SearchOptions{
		Limit:     *limit,
		Threshold: *threshold,
	})
	if err != nil {
		fatal("search: %v", err)
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, r.Score, r.Document.Title, r.Chunk.DocumentID)
		fmt.Printf("   %s\n", truncate(r.Chunk.Content, 160))
	}
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "sqlite database path (overrides config)")
	session := fs.String("session", "", "session id")
	limit := fs.Int("limit", 0, "most recent entries to show (0 = all)")
	fs.Parse(args)

	if *session == "" {
		fatal("history: --session is required")
	}

	eng, _ := buildEngine(*configPath, *dbPath, false)
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	entries, err := eng.Memory.GetBySession(ctx, *session, *limit)
	if err != nil {
		fatal("history: %v", err)
	}
	for _, e := range entries {
		fmt.Printf("[%s] %-9s %s\n", e.CreatedAt.Format(time.RFC3339), e.Role, e.Content)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "sqlite database path (overrides config)")
	fs.Parse(args)

	eng, _ := buildEngine(*configPath, *dbPath, false)
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stats, err := eng.Memory.Stats(ctx)
	if err != nil {
		fatal("stats: %v", err)
	}
	fmt.Printf("sessions: %d\nmessages: %d\n", stats.SessionCount, stats.MessageCount)
}

func truncate(s string, n int) string {
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
