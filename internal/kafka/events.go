package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
)

// EventPublisher emits task status transitions, keyed by task ID.
type EventPublisher struct {
	producer Producer
	topic    string
}

func NewEventPublisher(p Producer) *EventPublisher {
	return &EventPublisher{producer: p, topic: TopicTaskEvents}
}

func (e *EventPublisher) PublishTaskEvent(ctx context.Context, ev domain.TaskEvent) error {
	return PublishJSON(ctx, e.producer, e.topic, ev.TaskID, ev)
}

// ArticleRequest is the payload of TopicArticleRequests: a batch of topics
// to research and write about, processed in order.
type ArticleRequest struct {
	RequestID string                `json:"request_id,omitempty"`
	Topics    []domain.TopicRequest `json:"topics"`
}

// DecodeArticleRequest parses and validates an article request message.
// Malformed requests are returned as a PermanentError.
func DecodeArticleRequest(msg Message) (*ArticleRequest, error) {
	var req ArticleRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("decode article request at offset %d: %w", msg.Offset, err)}
	}
	if len(req.Topics) == 0 {
		return nil, &PermanentError{Err: fmt.Errorf("article request at offset %d has no topics", msg.Offset)}
	}
	if req.RequestID == "" {
		req.RequestID = string(msg.Key)
	}
	return &req, nil
}
