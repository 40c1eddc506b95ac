package domain

import "time"

// SourceType classifies where a source document came from.
type SourceType string

const (
	SourceWeb      SourceType = "web"
	SourceNews     SourceType = "news"
	SourceAcademic SourceType = "academic"
	SourceSocial   SourceType = "social"
	SourceRSS      SourceType = "rss"
)

// SourceDocument is one raw document handed to the research capability.
type SourceDocument struct {
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	SourceType     SourceType `json:"source_type"`
	ExtractedAt    time.Time  `json:"extracted_at"`
	RelevanceScore float64    `json:"relevance_score"`
}

// ResearchRecord is the persisted outcome of researching a topic.
type ResearchRecord struct {
	ID        string           `json:"id"`
	Topic     string           `json:"topic"`
	Tags      []string         `json:"tags"`
	Sources   []SourceDocument `json:"sources"`
	Summary   string           `json:"summary"`
	KeyPoints []string         `json:"key_points"`
	Bucket    string           `json:"bucket"`
	CreatedAt time.Time        `json:"created_at"`
}

type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticlePublished ArticleStatus = "published"
	ArticleArchived  ArticleStatus = "archived"
)

// Article is a generated piece of content.
type Article struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Slug        string        `json:"slug"`
	Content     string        `json:"content"`
	Excerpt     string        `json:"excerpt"`
	Tags        []string      `json:"tags"`
	Status      ArticleStatus `json:"status"`
	Reviewed    bool          `json:"reviewed"`
	ResearchID  string        `json:"research_id,omitempty"`
	PublishedAt *time.Time    `json:"published_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

type KnowledgeKind string

const (
	KnowledgeFact      KnowledgeKind = "fact"
	KnowledgeConcept   KnowledgeKind = "concept"
	KnowledgeProcedure KnowledgeKind = "procedure"
	KnowledgeReference KnowledgeKind = "reference"
)

// KnowledgeEntry is a curated piece of reference content.
type KnowledgeEntry struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Kind      KnowledgeKind `json:"kind"`
	Tags      []string      `json:"tags"`
	Source    string        `json:"source,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Retrieval collections.
const (
	CollectionArticles     = "articles"
	CollectionKnowledge    = "knowledge_base"
	CollectionResearchData = "research_data"
)

// DefaultCollections is searched when a query names none.
var DefaultCollections = []string{CollectionArticles, CollectionKnowledge, CollectionResearchData}

// AgentResult is the outcome of one capability execution. It carries either
// an Output or an error message, never both.
type AgentResult struct {
	Output Result
	Err    string
}

// Succeeded wraps a successful capability result.
func Succeeded(r Result) AgentResult { return AgentResult{Output: r} }

// Failed wraps a capability failure.
func Failed(msg string) AgentResult {
	if msg == "" {
		msg = "capability failed"
	}
	return AgentResult{Err: msg}
}

// Success reports whether the capability produced an output.
func (r AgentResult) Success() bool { return r.Output != nil }

// RetrievalHit is one similarity match, optionally resolved to full content.
type RetrievalHit struct {
	Collection string  `json:"collection"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Content    string  `json:"content,omitempty"`
	Resolved   bool    `json:"-"`
}

// TaskEvent describes one persisted status transition.
type TaskEvent struct {
	TaskID   string    `json:"task_id"`
	TaskType TaskType  `json:"task_type"`
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// TopicRequest asks for one article about Topic.
type TopicRequest struct {
	Topic string   `json:"topic"`
	Tags  []string `json:"tags"`
}
