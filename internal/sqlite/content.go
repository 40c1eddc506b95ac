package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

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
	sources := r.Sources
	if sources == nil {
		sources = []domain.SourceDocument{}
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return "", fmt.Errorf("encode sources of research %s: %w", r.ID, err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO research_records (id, topic, tags, sources, summary, key_points, bucket, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Topic, string(store.EncodeList(r.Tags)), string(raw), r.Summary,
		string(store.EncodeList(r.KeyPoints)), r.Bucket, nanos(r.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("create research %s: %w", r.ID, err)
	}
	return r.ID, nil
}

func (s *Store) GetResearch(ctx context.Context, id string) (*domain.ResearchRecord, error) {
	var (
		r                        domain.ResearchRecord
		tags, sources, keyPoints string
		createdAt                int64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, topic, tags, sources, summary, key_points, bucket, created_at
		FROM research_records WHERE id = ?
	`, id).Scan(&r.ID, &r.Topic, &tags, &sources, &r.Summary, &keyPoints, &r.Bucket, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.EntityNotFoundError{Kind: "research", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get research %s: %w", id, err)
	}
	if r.Tags, err = store.DecodeList([]byte(tags)); err != nil {
		return nil, fmt.Errorf("decode tags of research %s: %w", id, err)
	}
	if r.KeyPoints, err = store.DecodeList([]byte(keyPoints)); err != nil {
		return nil, fmt.Errorf("decode key points of research %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return nil, fmt.Errorf("decode sources of research %s: %w", id, err)
	}
	r.CreatedAt = fromNanos(createdAt)
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
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO articles
			(id, title, slug, content, excerpt, tags, status, reviewed, research_id, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Title, a.Slug, a.Content, a.Excerpt, string(store.EncodeList(a.Tags)), string(a.Status),
		a.Reviewed, a.ResearchID, nullNanos(a.PublishedAt), nanos(a.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("create article %s: %w", a.ID, err)
	}
	return a.ID, nil
}

func (s *Store) GetArticle(ctx context.Context, id string) (*domain.Article, error) {
	var (
		a            domain.Article
		tags, status string
		publishedAt  sql.NullInt64
		createdAt    int64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, title, slug, content, excerpt, tags, status, reviewed, research_id, published_at, created_at
		FROM articles WHERE id = ?
	`, id).Scan(&a.ID, &a.Title, &a.Slug, &a.Content, &a.Excerpt, &tags, &status,
		&a.Reviewed, &a.ResearchID, &publishedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.EntityNotFoundError{Kind: "article", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	if a.Tags, err = store.DecodeList([]byte(tags)); err != nil {
		return nil, fmt.Errorf("decode tags of article %s: %w", id, err)
	}
	a.Status = domain.ArticleStatus(status)
	a.PublishedAt = fromNullNanos(publishedAt)
	a.CreatedAt = fromNanos(createdAt)
	return &a, nil
}

func (s *Store) MarkArticleReviewed(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE articles SET reviewed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark article %s reviewed: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.EntityNotFoundError{Kind: "article", ID: id}
	}
	return nil
}

func (s *Store) MarkArticlePublished(ctx context.Context, id string, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE articles SET status = ?, published_at = ? WHERE id = ?`,
		string(domain.ArticlePublished), nanos(at), id)
	if err != nil {
		return fmt.Errorf("mark article %s published: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
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
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO knowledge_entries (id, title, content, kind, tags, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, k.ID, k.Title, k.Content, string(k.Kind), string(store.EncodeList(k.Tags)), k.Source, nanos(k.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("create knowledge entry %s: %w", k.ID, err)
	}
	return k.ID, nil
}

func (s *Store) GetKnowledge(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	var (
		k          domain.KnowledgeEntry
		kind, tags string
		createdAt  int64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, title, content, kind, tags, source, created_at
		FROM knowledge_entries WHERE id = ?
	`, id).Scan(&k.ID, &k.Title, &k.Content, &kind, &tags, &k.Source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.EntityNotFoundError{Kind: "knowledge", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge entry %s: %w", id, err)
	}
	if k.Tags, err = store.DecodeList([]byte(tags)); err != nil {
		return nil, fmt.Errorf("decode tags of knowledge entry %s: %w", id, err)
	}
	k.Kind = domain.KnowledgeKind(kind)
	k.CreatedAt = fromNanos(createdAt)
	return &k, nil
}
