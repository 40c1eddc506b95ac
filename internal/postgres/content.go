package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
)

func (s *Store) CreateResearch(ctx context.Context, r *domain.ResearchRecord) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	sources, err := json.Marshal(nonNilSources(r.Sources))
	if err != nil {
		return "", fmt.Errorf("encode sources of research %s: %w", r.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO research_records (id, topic, tags, sources, summary, key_points, bucket, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.Topic, store.EncodeList(r.Tags), sources, r.Summary,
		store.EncodeList(r.KeyPoints), r.Bucket, r.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("create research %s: %w", r.ID, err)
	}
	return r.ID, nil
}

func (s *Store) GetResearch(ctx context.Context, id string) (*domain.ResearchRecord, error) {
	var (
		r                        domain.ResearchRecord
		tags, sources, keyPoints []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, topic, tags, sources, summary, key_points, bucket, created_at
		FROM research_records WHERE id = $1
	`, id).Scan(&r.ID, &r.Topic, &tags, &sources, &r.Summary, &keyPoints, &r.Bucket, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.EntityNotFoundError{Kind: "research", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get research %s: %w", id, err)
	}
	if r.Tags, err = store.DecodeList(tags); err != nil {
		return nil, fmt.Errorf("decode tags of research %s: %w", id, err)
	}
	if r.KeyPoints, err = store.DecodeList(keyPoints); err != nil {
		return nil, fmt.Errorf("decode key points of research %s: %w", id, err)
	}
	if err := json.Unmarshal(sources, &r.Sources); err != nil {
		return nil, fmt.Errorf("decode sources of research %s: %w", id, err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func (s *Store) CreateArticle(ctx context.Context, a *domain.Article) (string, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = domain.ArticleDraft
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO articles
			(id, title, slug, content, excerpt, tags, status, reviewed, research_id, published_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.Title, a.Slug, a.Content, a.Excerpt, store.EncodeList(a.Tags), string(a.Status),
		a.Reviewed, a.ResearchID, a.PublishedAt, a.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("create article %s: %w", a.ID, err)
	}
	return a.ID, nil
}

func (s *Store) GetArticle(ctx context.Context, id string) (*domain.Article, error) {
	var (
		a           domain.Article
		tags        []byte
		status      string
		publishedAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, slug, content, excerpt, tags, status, reviewed, research_id, published_at, created_at
		FROM articles WHERE id = $1
	`, id).Scan(&a.ID, &a.Title, &a.Slug, &a.Content, &a.Excerpt, &tags, &status,
		&a.Reviewed, &a.ResearchID, &publishedAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.EntityNotFoundError{Kind: "article", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	if a.Tags, err = store.DecodeList(tags); err != nil {
		return nil, fmt.Errorf("decode tags of article %s: %w", id, err)
	}
	a.Status = domain.ArticleStatus(status)
	a.PublishedAt = utcPtr(publishedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (s *Store) MarkArticleReviewed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE articles SET reviewed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark article %s reviewed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.EntityNotFoundError{Kind: "article", ID: id}
	}
	return nil
}

func (s *Store) MarkArticlePublished(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE articles SET status = $2, published_at = $3 WHERE id = $1`,
		id, string(domain.ArticlePublished), at.UTC())
	if err != nil {
		return fmt.Errorf("mark article %s published: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.EntityNotFoundError{Kind: "article", ID: id}
	}
	return nil
}

func (s *Store) CreateKnowledge(ctx context.Context, k *domain.KnowledgeEntry) (string, error) {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO knowledge_entries (id, title, content, kind, tags, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, k.ID, k.Title, k.Content, string(k.Kind), store.EncodeList(k.Tags), k.Source, k.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("create knowledge entry %s: %w", k.ID, err)
	}
	return k.ID, nil
}

func (s *Store) GetKnowledge(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	var (
		k    domain.KnowledgeEntry
		kind string
		tags []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, content, kind, tags, source, created_at
		FROM knowledge_entries WHERE id = $1
	`, id).Scan(&k.ID, &k.Title, &k.Content, &kind, &tags, &k.Source, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.EntityNotFoundError{Kind: "knowledge", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge entry %s: %w", id, err)
	}
	if k.Tags, err = store.DecodeList(tags); err != nil {
		return nil, fmt.Errorf("decode tags of knowledge entry %s: %w", id, err)
	}
	k.Kind = domain.KnowledgeKind(kind)
	k.CreatedAt = k.CreatedAt.UTC()
	return &k, nil
}

func nonNilSources(s []domain.SourceDocument) []domain.SourceDocument {
	if s == nil {
		return []domain.SourceDocument{}
	}
	return s
}
