package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
)

// KnowledgeBase stores curated entries and makes them retrievable.
type KnowledgeBase struct {
	content store.ContentStore
	engine  *Engine
	now     func() time.Time
}

func NewKnowledgeBase(content store.ContentStore, engine *Engine) *KnowledgeBase {
	return &KnowledgeBase{content: content, engine: engine, now: func() time.Time { return time.Now().UTC() }}
}

// Add persists entry and indexes it into the knowledge collection. Kind
// defaults to fact. The entry is stored even when indexing fails; the error
// is returned so the caller can re-index.
func (k *KnowledgeBase) Add(ctx context.Context, entry *domain.KnowledgeEntry) (*domain.KnowledgeEntry, error) {
	if strings.TrimSpace(entry.Title) == "" {
		return nil, &domain.ValidationError{Field: "title", Reason: "is required"}
	}
	if strings.TrimSpace(entry.Content) == "" {
		return nil, &domain.ValidationError{Field: "content", Reason: "is required"}
	}
	if entry.Kind == "" {
		entry.Kind = domain.KnowledgeFact
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	entry.CreatedAt = k.now()

	id, err := k.content.CreateKnowledge(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("store knowledge: %w", err)
	}
	entry.ID = id

	payload := map[string]any{"title": entry.Title, "tags": entry.Tags, "type": string(entry.Kind)}
	if err := k.engine.Index(ctx, domain.CollectionKnowledge, id, entry.Title+"\n\n"+entry.Content, payload); err != nil {
		return entry, fmt.Errorf("index knowledge %s: %w", id, err)
	}
	return entry, nil
}
