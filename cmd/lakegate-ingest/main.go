package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/pflag"
	"github.com/triage-ai/lakegate/internal/retrieval"
	"go.uber.org/zap"
)

const upsertBatchSize = 64

// lakegate-ingest rebuilds the retrieval collection from a directory of
// Markdown notes. Every point carries doc_name, chunk_id, text, and
// allowed_roles in its payload; the gateway's role filter depends on
// allowed_roles being present on every point.
func main() {
	corpusDir := pflag.String("corpus", "corpus", "directory of .md documents to index")
	roles := pflag.StringSlice("roles", []string{"finance", "ops"}, "roles allowed to see the indexed chunks")
	chunkSize := pflag.Int("chunk-size", 400, "chunk width in bytes")
	pflag.Parse()

	logger := mustBuildLogger()
	defer logger.Sync() //nolint:errcheck // best-effort flush

	qdrantURL := envOrDefault("QDRANT_URL", "http://localhost:6333")
	collection := envOrDefault("QDRANT_COLLECTION", "rag_docs")
	embeddingsURL := envOrDefault("EMBEDDINGS_URL", "http://localhost:8081")
	embeddingsModel := envOrDefault("EMBEDDINGS_MODEL", "all-MiniLM-L6-v2")

	embedder := retrieval.NewOpenAIEmbedder(embeddingsURL, embeddingsModel)
	client := retrieval.NewQdrantClient(qdrantURL, collection)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	paths, err := filepath.Glob(filepath.Join(*corpusDir, "*.md"))
	if err != nil {
		logger.Fatal("bad corpus directory", zap.Error(err))
	}
	if len(paths) == 0 {
		logger.Fatal("no .md documents found", zap.String("corpus", *corpusDir))
	}
	sort.Strings(paths)

	var (
		points  []retrieval.UpsertPoint
		pointID uint64 = 1
		created bool
		total   int
	)

	flush := func() {
		if len(points) == 0 {
			return
		}
		if err := client.Upsert(ctx, points); err != nil {
			logger.Fatal("upsert failed", zap.Error(err))
		}
		total += len(points)
		points = points[:0]
	}

	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal("unreadable document", zap.String("path", path), zap.Error(err))
		}
		docName := filepath.Base(path)

		for idx, chunk := range retrieval.ChunkText(string(content), *chunkSize) {
			vector, err := embedder.Embed(ctx, chunk)
			if err != nil {
				logger.Fatal("embedding failed",
					zap.String("doc_name", docName),
					zap.Int("chunk_id", idx),
					zap.Error(err),
				)
			}

			// Clean rebuild, sized from the first embedding.
			if !created {
				if err := client.EnsureCollection(ctx, len(vector)); err != nil {
					logger.Fatal("collection rebuild failed", zap.Error(err))
				}
				created = true
			}

			points = append(points, retrieval.UpsertPoint{
				ID:     pointID,
				Vector: vector,
				Payload: retrieval.Payload{
					DocName:      docName,
					ChunkID:      idx,
					Text:         chunk,
					AllowedRoles: *roles,
				},
			})
			pointID++
			if len(points) >= upsertBatchSize {
				flush()
			}
		}
	}
	flush()

	logger.Info("corpus indexed",
		zap.Int("documents", len(paths)),
		zap.Int("chunks", total),
		zap.String("collection", collection),
		zap.Strings("allowed_roles", *roles),
	)
}

func mustBuildLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
