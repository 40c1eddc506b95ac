package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/kafka"
	"github.com/ramiqadoumi/go-content-flow/internal/rag"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
	"github.com/ramiqadoumi/go-content-flow/internal/workflow"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

// ── collaborators ───────────────────────────────────────────────────────────

type Batcher interface {
	Run(ctx context.Context, topics []domain.TopicRequest) (workflow.BatchResult, error)
}

type TaskAdmin interface {
	Submit(ctx context.Context, name string, taskType domain.TaskType, priority int, input domain.TaskInput) (*domain.WorkflowTask, error)
	Get(ctx context.Context, id string) (*domain.WorkflowTask, error)
	List(ctx context.Context, f store.TaskFilter) ([]*domain.WorkflowTask, int, error)
	Retry(ctx context.Context, id string) (*domain.WorkflowTask, error)
	Cancel(ctx context.Context, id string) (*domain.WorkflowTask, error)
}

type PendingProcessor interface {
	ProcessPending(ctx context.Context) (int, error)
}

type Retriever interface {
	Query(ctx context.Context, question string, opts rag.QueryOptions) (*rag.QueryResult, error)
	GenerateWithContext(ctx context.Context, prompt string, tags []string) (*rag.GenerationResult, error)
}

type KnowledgeAdder interface {
	Add(ctx context.Context, entry *domain.KnowledgeEntry) (*domain.KnowledgeEntry, error)
}

// Deps groups the REST handler's collaborators. Producer may be nil, in
// which case asynchronous workflow requests are refused.
type Deps struct {
	Workflows workflow.ArticleWorkflow
	Batch     Batcher
	Tasks     TaskAdmin
	Drainer   PendingProcessor
	RAG       Retriever
	Knowledge KnowledgeAdder
	Producer  kafka.Producer
	Ready     telemetry.ReadyFunc
}

// REST handles HTTP requests for the API Gateway.
type REST struct {
	Deps
	logger *slog.Logger
}

func NewREST(deps Deps, logger *slog.Logger) *REST {
	return &REST{Deps: deps, logger: logger}
}

var tracer = otel.Tracer("api-gateway")

// Routes mounts every endpoint on r.
func (h *REST) Routes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", telemetry.ReadinessHandler(h.Ready))
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/workflows/articles", h.RunArticleWorkflow)
		r.Post("/workflows/batch", h.RunBatch)

		r.Get("/tasks", h.ListTasks)
		r.Post("/tasks", h.SubmitTask)
		r.Post("/tasks/process-pending", h.ProcessPending)
		r.Get("/tasks/{id}", h.GetTask)
		r.Post("/tasks/{id}/cancel", h.CancelTask)
		r.Post("/tasks/{id}/retry", h.RetryTask)

		r.Post("/chat", h.Chat)
		r.Post("/chat/generate", h.Generate)
		r.Post("/knowledge", h.AddKnowledge)
	})
}

// ── workflows ───────────────────────────────────────────────────────────────

// ArticleRequest is the JSON body for POST /api/v1/workflows/articles.
type ArticleRequest struct {
	Topic string   `json:"topic"`
	Tags  []string `json:"tags"`
}

// AcceptedResponse is returned for requests queued on Kafka.
type AcceptedResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// RunArticleWorkflow handles POST /api/v1/workflows/articles. With
// ?async=true the request is queued for the worker and answered with 202.
func (h *REST) RunArticleWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "api_gateway.article_workflow")
	defer span.End()

	var req ArticleRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		writeError(w, http.StatusBadRequest, "field 'topic' is required")
		return
	}
	span.SetAttributes(attribute.String("workflow.topic", req.Topic))

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueue(ctx, w, []domain.TopicRequest{{Topic: req.Topic, Tags: req.Tags}})
		return
	}

	res, err := h.Workflows.ExecuteArticleWorkflow(ctx, req.Topic, req.Tags)
	if err != nil {
		h.fail(w, "article workflow failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BatchRequest is the JSON body for POST /api/v1/workflows/batch.
type BatchRequest struct {
	Topics []domain.TopicRequest `json:"topics"`
}

// RunBatch handles POST /api/v1/workflows/batch. With ?async=true the batch
// is queued for the worker.
func (h *REST) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Topics) == 0 {
		writeError(w, http.StatusBadRequest, "field 'topics' must not be empty")
		return
	}
	for i, t := range req.Topics {
		if strings.TrimSpace(t.Topic) == "" {
			writeError(w, http.StatusBadRequest, "topics["+strconv.Itoa(i)+"].topic is required")
			return
		}
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueue(r.Context(), w, req.Topics)
		return
	}

	res, err := h.Batch.Run(r.Context(), req.Topics)
	if err != nil {
		h.fail(w, "batch failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *REST) enqueue(ctx context.Context, w http.ResponseWriter, topics []domain.TopicRequest) {
	if h.Producer == nil {
		writeError(w, http.StatusServiceUnavailable, "asynchronous workflows are disabled")
		return
	}
	id := uuid.NewString()
	msg := kafka.ArticleRequest{RequestID: id, Topics: topics}
	if err := kafka.PublishJSON(ctx, h.Producer, kafka.TopicArticleRequests, id, msg); err != nil {
		h.logger.Error("failed to enqueue article request", slog.String("request_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to enqueue request")
		return
	}
	h.logger.Info("article request queued", slog.String("request_id", id), slog.Int("topics", len(topics)))
	writeJSON(w, http.StatusAccepted, AcceptedResponse{RequestID: id, Status: "queued"})
}

// ── tasks ───────────────────────────────────────────────────────────────────

// SubmitTaskRequest is the JSON body for POST /api/v1/tasks. Params holds
// the type-specific parameters, e.g. {"article_id": "..."} for a review.
type SubmitTaskRequest struct {
	Name     string          `json:"name"`
	Type     domain.TaskType `json:"type"`
	Priority int             `json:"priority"`
	Topic    string          `json:"topic"`
	Tags     []string        `json:"tags"`
	Params   json.RawMessage `json:"params,omitempty"`
}

func (req SubmitTaskRequest) input() (domain.TaskInput, error) {
	raw := map[string]any{"topic": req.Topic, "tags": req.Tags}
	if len(req.Params) > 0 && string(req.Params) != "null" {
		raw["params"] = map[string]any{"kind": req.Type, "data": req.Params}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return domain.TaskInput{}, err
	}
	var in domain.TaskInput
	if err := json.Unmarshal(b, &in); err != nil {
		return domain.TaskInput{}, &domain.ValidationError{Field: "params", Reason: err.Error()}
	}
	return in, nil
}

// SubmitTask handles POST /api/v1/tasks: queues a standalone task for the
// drainer.
func (h *REST) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "field 'type' is required")
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, "invalid task input", err)
		return
	}
	task, err := h.Tasks.Submit(r.Context(), req.Name, req.Type, req.Priority, in)
	if err != nil {
		h.fail(w, "failed to submit task", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// TaskListResponse is the GET /api/v1/tasks response body.
type TaskListResponse struct {
	Tasks []*domain.WorkflowTask `json:"tasks"`
	Total int                    `json:"total"`
}

// ListTasks handles GET /api/v1/tasks?status=&type=&limit=&offset=.
func (h *REST) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TaskFilter{
		Status: domain.Status(q.Get("status")),
		Type:   domain.TaskType(q.Get("type")),
		Limit:  50,
	}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "query parameter '"+key+"' must be a non-negative integer")
				return
			}
			*dst = n
		}
	}

	tasks, total, err := h.Tasks.List(r.Context(), f)
	if err != nil {
		h.fail(w, "failed to list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []*domain.WorkflowTask{}
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: tasks, Total: total})
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *REST) GetTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, r, "failed to retrieve task", h.Tasks.Get)
}

// CancelTask handles POST /api/v1/tasks/{id}/cancel.
func (h *REST) CancelTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, r, "failed to cancel task", h.Tasks.Cancel)
}

// RetryTask handles POST /api/v1/tasks/{id}/retry.
func (h *REST) RetryTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, r, "failed to retry task", h.Tasks.Retry)
}

func (h *REST) taskAction(w http.ResponseWriter, r *http.Request, msg string, fn func(context.Context, string) (*domain.WorkflowTask, error)) {
	task, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, msg, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ProcessPending handles POST /api/v1/tasks/process-pending.
func (h *REST) ProcessPending(w http.ResponseWriter, r *http.Request) {
	n, err := h.Drainer.ProcessPending(r.Context())
	if err != nil {
		h.fail(w, "drain failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": n})
}

// ── retrieval ───────────────────────────────────────────────────────────────

// ChatRequest is the JSON body for POST /api/v1/chat.
type ChatRequest struct {
	Question    string   `json:"question"`
	Collections []string `json:"collections"`
	Limit       int      `json:"limit"`
	Tags        []string `json:"tags"`
}

// Chat handles POST /api/v1/chat.
func (h *REST) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.RAG.Query(r.Context(), req.Question, rag.QueryOptions{
		Collections: req.Collections,
		Limit:       req.Limit,
		Tags:        req.Tags,
	})
	if err != nil {
		h.fail(w, "query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GenerateRequest is the JSON body for POST /api/v1/chat/generate.
type GenerateRequest struct {
	Prompt string   `json:"prompt"`
	Tags   []string `json:"tags"`
}

// Generate handles POST /api/v1/chat/generate.
func (h *REST) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "field 'prompt' is required")
		return
	}
	res, err := h.RAG.GenerateWithContext(r.Context(), req.Prompt, req.Tags)
	if err != nil {
		h.fail(w, "generation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AddKnowledge handles POST /api/v1/knowledge.
func (h *REST) AddKnowledge(w http.ResponseWriter, r *http.Request) {
	var entry domain.KnowledgeEntry
	if !decode(w, r, &entry) {
		return
	}
	entry.ID = ""
	saved, err := h.Knowledge.Add(r.Context(), &entry)
	if err != nil {
		if saved != nil {
			// Stored but not indexed.
			h.logger.Warn("knowledge entry not indexed", slog.String("id", saved.ID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusCreated, saved)
			return
		}
		h.fail(w, "failed to add knowledge", err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// ── probes ──────────────────────────────────────────────────────────────────

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── helpers ─────────────────────────────────────────────────────────────────

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail maps domain errors to status codes: not found is 404, validation and
// state errors are 400, rate limiting is 429, anything else is logged and 500.
func (h *REST) fail(w http.ResponseWriter, msg string, err error) {
	var (
		taskNotFound   *domain.TaskNotFoundError
		entityNotFound *domain.EntityNotFoundError
		validation     *domain.ValidationError
		transition     *domain.InvalidTransitionError
		taskType       *domain.InvalidTaskTypeError
		rateLimited    *domain.RateLimitExceededError
	)
	switch {
	case errors.As(err, &taskNotFound), errors.As(err, &entityNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation), errors.As(err, &transition), errors.As(err, &taskType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &rateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
