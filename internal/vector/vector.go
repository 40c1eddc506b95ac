// Package vector stores document embeddings and answers similarity queries.
// Qdrant is the production backend; Memory serves local runs and tests.
package vector

import (
	"errors"
)

// Dimensions is the embedding size collections are created with.
const Dimensions = 1536

// ErrCollectionNotFound is returned by Search when the collection does not exist.
var ErrCollectionNotFound = errors.New("vector: collection not found")

// SearchRequest describes one similarity query against a single collection.
// A non-empty Tags restricts matches to documents carrying at least one of them.
type SearchRequest struct {
	Collection string
	Vector     []float32
	Limit      int
	Tags       []string
}

// Match is a document id with its similarity score, highest first.
type Match struct {
	ID    string
	Score float64
}

// Payload is the metadata stored next to a vector. The "tags" key is used
// for filtering.
type Payload map[string]any

const tagsKey = "tags"

func payloadTags(p Payload) []string {
	switch v := p[tagsKey].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
