package rag

import (
	"context"
	"errors"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
)

// StoreResolver resolves index hits against the content store:
//
//	articles       → title + content
//	knowledge_base → title + content
//	research_data  → topic + summary
//
// Unknown collections and missing documents resolve to ok == false.
type StoreResolver struct {
	content store.ContentStore
}

func NewStoreResolver(content store.ContentStore) *StoreResolver {
	return &StoreResolver{content: content}
}

func (r *StoreResolver) Resolve(ctx context.Context, collection, id string) (string, bool, error) {
	var (
		text string
		err  error
	)
	switch collection {
	case domain.CollectionArticles:
		var a *domain.Article
		if a, err = r.content.GetArticle(ctx, id); err == nil {
			text = a.Title + "\n\n" + a.Content
		}
	case domain.CollectionKnowledge:
		var k *domain.KnowledgeEntry
		if k, err = r.content.GetKnowledge(ctx, id); err == nil {
			text = k.Title + "\n\n" + k.Content
		}
	case domain.CollectionResearchData:
		var rec *domain.ResearchRecord
		if rec, err = r.content.GetResearch(ctx, id); err == nil {
			text = rec.Topic + "\n\n" + rec.Summary
		}
	default:
		return "", false, nil
	}

	var notFound *domain.EntityNotFoundError
	if errors.As(err, &notFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}
