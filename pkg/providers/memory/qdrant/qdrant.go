// Package qdrant implements the long-term half of the memory port: vector
// recall of prior session summaries.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// Config holds the connection parameters for one collection.
type Config struct {
	URL            string
	CollectionName string
	APIKey         string
}

// Embedder turns text into the vector space the collection was indexed
// with. Concrete embedding is out of this engine's scope; callers supply
// whichever model-backed implementation fits their deployment.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is one long-term recall hit.
type Result struct {
	SessionID string
	Text      string
	Score     float32
}

// Store implements long-term recall and persistence against Qdrant.
type Store struct {
	client     *qdrant.Client
	collection string
	embed      Embedder
}

func New(cfg Config, embed Embedder) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant: url is required")
	}
	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parsing url: %w", err)
	}
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("qdrant: invalid port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: creating client: %w", err)
	}

	return &Store{client: client, collection: cfg.CollectionName, embed: embed}, nil
}

// Search returns the top-scoring summaries related to text, filtered to
// sessionID's own history.
func (s *Store) Search(ctx context.Context, sessionID, text string, limit int) ([]Result, error) {
	vector, err := s.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("qdrant: embedding query: %w", err)
	}
	limitU64 := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limitU64,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				{
					ConditionOneOf: &qdrant.Condition_Field{
						Field: &qdrant.FieldCondition{
							Key:   "session_id",
							Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: sessionID}},
						},
					},
				},
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	out := make([]Result, 0, len(points))
	for _, point := range points {
		r := Result{SessionID: sessionID, Score: point.Score}
		if point.Payload != nil {
			if v, ok := point.Payload["text"]; ok {
				r.Text = v.GetStringValue()
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// Upsert persists one durable summary for sessionID.
func (s *Store) Upsert(ctx context.Context, sessionID, text string) error {
	vector, err := s.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("qdrant: embedding summary: %w", err)
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(sessionID),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"session_id": sessionID,
					"text":       text,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
