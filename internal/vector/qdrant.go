package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// docIDKey holds the caller's document id; Qdrant point ids must be UUIDs.
const docIDKey = "doc_id"

var pointNamespace = uuid.MustParse("5b7c1f8e-2f0b-4c55-9a43-0f5d6c1e7a21")

// QdrantConfig addresses a Qdrant instance over gRPC.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Qdrant is a RetrievalIndex backed by Qdrant. Collections are created on
// first upsert with cosine distance.
type Qdrant struct {
	client *qdrant.Client
	logger *slog.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

// NewQdrant dials Qdrant. The connection is lazy; use Ping to verify it.
func NewQdrant(cfg QdrantConfig, logger *slog.Logger) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return &Qdrant{client: client, logger: logger, ensured: make(map[string]bool)}, nil
}

func (q *Qdrant) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

func (q *Qdrant) Close() error { return q.client.Close() }

// Search returns the closest points in req.Collection.
func (q *Qdrant) Search(ctx context.Context, req SearchRequest) ([]Match, error) {
	limit := uint64(req.Limit)
	query := &qdrant.QueryPoints{
		CollectionName: req.Collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayloadInclude(docIDKey),
	}
	if len(req.Tags) > 0 {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeywords(tagsKey, req.Tags...)},
		}
	}

	points, err := q.client.Query(ctx, query)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("qdrant query %s: %w", req.Collection, err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		id := p.GetId().GetUuid()
		if v, ok := p.GetPayload()[docIDKey]; ok && v.GetStringValue() != "" {
			id = v.GetStringValue()
		}
		matches = append(matches, Match{ID: id, Score: float64(p.GetScore())})
	}
	return matches, nil
}

// Upsert stores vector under id, creating the collection if needed.
func (q *Qdrant) Upsert(ctx context.Context, collection, id string, vector []float32, payload Payload) error {
	if err := q.ensureCollection(ctx, collection); err != nil {
		return err
	}

	values := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		if tags, ok := v.([]string); ok {
			list := make([]any, len(tags))
			for i, t := range tags {
				list[i] = t
			}
			v = list
		}
		values[k] = v
	}
	values[docIDKey] = id

	valueMap, err := qdrant.TryValueMap(values)
	if err != nil {
		return fmt.Errorf("qdrant payload for %s: %w", id, err)
	}

	wait := true
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(pointID(id)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: valueMap,
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes id from collection. A missing collection is not an error.
func (q *Qdrant) Delete(ctx context.Context, collection, id string) error {
	wait := true
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(pointID(id))),
	})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("qdrant delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensured[name] {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant collection exists %s: %w", name, err)
	}
	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     Dimensions,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("qdrant create collection %s: %w", name, err)
		}
		q.logger.Info("created vector collection", slog.String("collection", name))
	}
	q.ensured[name] = true
	return nil
}

// pointID maps a document id to a Qdrant UUID. UUIDs pass through; anything
// else gets a stable name-based UUID.
func pointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}
