package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"dev.helix.retrieval/internal/chunker"
	"dev.helix.retrieval/internal/config"
	"dev.helix.retrieval/internal/embedding"
	"dev.helix.retrieval/internal/observability/metrics"
	"dev.helix.retrieval/internal/rag"
	"dev.helix.retrieval/internal/vectordb/pgvector"
	"dev.helix.retrieval/internal/vectordb/qdrant"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger := newLogger(cfg)

	if err := run(os.Args[1], os.Args[2:], cfg, logger); err != nil {
		logger.WithError(err).Fatal("Command failed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: retrievald <ingest|query|delete> [flags]")
	fmt.Fprintln(os.Stderr, "  ingest -doc <id> -file <path> [-semantic]")
	fmt.Fprintln(os.Stderr, "  query  -q <text> [-limit N] [-min-similarity F] [-rerank N]")
	fmt.Fprintln(os.Stderr, "  delete -doc <id>")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Service.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Service.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func run(command string, args []string, cfg *config.Config, logger *logrus.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	if cfg.Service.MetricsEnabled {
		go serveMetrics(cfg.Service.MetricsAddr, collector, logger)
	}

	store, err := pgvector.NewStore(&cfg.Database, logger)
	if err != nil {
		return err
	}
	if err := store.Connect(ctx); err != nil {
		return err
	}
	defer store.Close()

	embedder, err := embedding.NewOpenAIEmbedder(&cfg.Embedding, logger)
	if err != nil {
		return err
	}

	var vectorIndex rag.VectorIndex = store
	var chunkStore rag.ChunkStore = store
	if cfg.Qdrant.Enabled {
		client, err := qdrant.NewClient(&cfg.Qdrant.Client, logger)
		if err != nil {
			return err
		}
		if err := client.Connect(ctx); err != nil {
			return err
		}
		if err := client.EnsureCollection(ctx, cfg.Qdrant.Collection, embedder.Dimension()); err != nil {
			return err
		}
		index, err := rag.NewQdrantIndex(client, cfg.Qdrant.Collection, logger)
		if err != nil {
			return err
		}
		vectorIndex = index
		chunkStore, err = rag.NewMultiStore(store, index)
		if err != nil {
			return err
		}
	}

	switch command {
	case "ingest":
		return runIngest(ctx, args, cfg, embedder, chunkStore, collector, logger)
	case "query":
		return runQuery(ctx, args, cfg, embedder, vectorIndex, store, collector, logger)
	case "delete":
		return runDelete(ctx, args, chunkStore, logger)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func serveMetrics(addr string, collector *metrics.Collector, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	logger.WithField("addr", addr).Info("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.WithError(err).Warn("Metrics server stopped")
	}
}

func runIngest(ctx context.Context, args []string, cfg *config.Config, embedder *embedding.OpenAIEmbedder, store rag.ChunkStore, collector *metrics.Collector, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	docID := fs.String("doc", "", "document id")
	file := fs.String("file", "", "path to a UTF-8 text file")
	semantic := fs.Bool("semantic", false, "use semantic chunking instead of fixed windows")
	_ = fs.Parse(args)

	if *docID == "" || *file == "" {
		return fmt.Errorf("ingest requires -doc and -file")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	var chunk rag.ChunkFunc
	strategy := "window"
	if *semantic {
		strategy = "semantic"
		sc, err := chunker.NewSemanticChunker(embedder, &cfg.Semantic, logger)
		if err != nil {
			return err
		}
		chunk = sc.Chunk
	} else {
		fc, err := chunker.NewFixedWindowChunker(&cfg.Window, logger)
		if err != nil {
			return err
		}
		chunk = func(_ context.Context, text string) ([]chunker.Chunk, error) {
			return fc.Chunk(text, nil), nil
		}
	}

	pipeline, err := rag.NewPipeline(chunk, strategy, embedder, store, cfg.Service.IndexBatchSize, logger, collector)
	if err != nil {
		return err
	}

	count, err := pipeline.IndexDocument(ctx, *docID, string(data))
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"document_id": *docID,
		"chunks":      count,
	}).Info("Document indexed")
	return nil
}

func runQuery(ctx context.Context, args []string, cfg *config.Config, embedder *embedding.OpenAIEmbedder, vectorIndex rag.VectorIndex, lexical rag.LexicalIndex, collector *metrics.Collector, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	query := fs.String("q", "", "query text")
	limit := fs.Int("limit", 10, "maximum results")
	minSim := fs.Float64("min-similarity", 0, "vector similarity floor")
	rerank := fs.Int("rerank", 0, "rerank to the top N results")
	_ = fs.Parse(args)

	if *query == "" {
		return fmt.Errorf("query requires -q")
	}

	ranker, err := rag.NewHybridRanker(vectorIndex, lexical, &cfg.Ranker, logger, collector)
	if err != nil {
		return err
	}

	queryVector, err := embedder.Embed(ctx, *query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := ranker.Search(ctx, queryVector, *query, &rag.SearchOptions{
		Limit:         *limit,
		MinSimilarity: *minSim,
	})
	if err != nil {
		return err
	}

	if *rerank > 0 {
		reranker := rag.NewCrossEncoderReranker(&cfg.Reranker, logger, collector)
		results = reranker.Rerank(ctx, *query, results, *rerank)
	}

	for i, r := range results {
		fmt.Printf("%2d. [%.4f] doc=%s chunk=%s\n", i+1, r.FusedScore, r.DocumentID, r.ID)
		fmt.Printf("    %s\n", truncate(r.Content, 160))
	}
	return nil
}

func runDelete(ctx context.Context, args []string, store rag.ChunkStore, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	docID := fs.String("doc", "", "document id")
	_ = fs.Parse(args)

	if *docID == "" {
		return fmt.Errorf("delete requires -doc")
	}
	if err := store.DeleteDocument(ctx, *docID); err != nil {
		return err
	}
	logger.WithField("document_id", *docID).Info("Document deleted")
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
