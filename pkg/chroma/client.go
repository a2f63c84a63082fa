package chroma

import (
	"context"
	"fmt"
	"os"
	"strings"

	filesdomain "fileflow-backend/internal/files/domain"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	"github.com/rs/zerolog/log"
)

const collectionName = "processed_files"

type Config struct {
	APIKey       string
	Tenant       string
	Database     string
	GeminiAPIKey string
}

// FileIndex keeps one embedded document per processed file, scoped by user_id metadata.
type FileIndex struct {
	collection chroma.Collection
}

func NewFileIndex(ctx context.Context, cfg Config) (*FileIndex, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}

	// The embedding function reads its key from the environment.
	if cfg.GeminiAPIKey != "" && os.Getenv("GEMINI_API_KEY") == "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	}
	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	var client chroma.Client
	switch {
	case cfg.Database != "" && cfg.Tenant != "":
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.APIKey),
			chroma.WithDatabaseAndTenant(cfg.Database, cfg.Tenant),
		)
	case cfg.Tenant != "":
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.APIKey),
			chroma.WithTenant(cfg.Tenant),
		)
	default:
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.APIKey),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(ctx, collectionName, chroma.WithEmbeddingFunctionCreate(embedFunc))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Info().Str("collection", collectionName).Msg("[Chroma] File index ready")
	return &FileIndex{collection: collection}, nil
}

// Document is the text embedded for a file.
func Document(file *filesdomain.ProcessedFile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", file.Filename)
	fmt.Fprintf(&b, "Category: %s\n", file.Category)
	if file.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", file.Subject)
	}
	if file.From != "" {
		fmt.Fprintf(&b, "From: %s\n", file.From)
	}
	return b.String()
}

// IndexFile upserts the file under its id so re-indexing never duplicates.
func (i *FileIndex) IndexFile(ctx context.Context, file *filesdomain.ProcessedFile) error {
	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"user_id":  file.UserID,
		"file_id":  file.ID,
		"category": string(file.Category),
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = i.collection.Upsert(ctx,
		chroma.WithIDs(chroma.DocumentID(file.ID)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(Document(file)),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert file embedding: %w", err)
	}
	return nil
}

// SearchFiles returns file ids ordered by similarity.
func (i *FileIndex) SearchFiles(ctx context.Context, userID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := i.collection.Query(ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
		chroma.WithWhereQuery(chroma.EqString("user_id", userID)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return []string{}, nil
	}

	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 {
		return []string{}, nil
	}
	ids := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		ids = append(ids, string(id))
	}
	return ids, nil
}

func (i *FileIndex) DeleteFiles(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	docIDs := make([]chroma.DocumentID, 0, len(ids))
	for _, id := range ids {
		docIDs = append(docIDs, chroma.DocumentID(id))
	}
	if err := i.collection.Delete(ctx, chroma.WithIDsDelete(docIDs...)); err != nil {
		return fmt.Errorf("failed to delete file embeddings: %w", err)
	}
	return nil
}
