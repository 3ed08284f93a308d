package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
)

// Qdrant implements Store over the Qdrant REST API. Qdrant point ids
// must be integers or UUIDs, so string keys are hashed with FNV-64a
// for the id and kept verbatim in the payload.
type Qdrant struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewQdrant creates a Qdrant store from cfg.
func NewQdrant(cfg config.VectorConfig) (*Qdrant, error) {
	base := cfg.URL
	if base == "" {
		base = "http://localhost:6333"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("invalid Qdrant URL scheme %q", u.Scheme)
	}
	return &Qdrant{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func pointID(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64()
}

type qdrantPayload struct {
	Key      string `json:"key"`
	RepoID   int64  `json:"repo_id"`
	PRNumber int    `json:"pr_number"`
}

func (q *Qdrant) EnsureCollection(ctx context.Context, collection string, dims int) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dims,
			"distance": "Cosine",
		},
	}
	status, respBody, err := q.do(ctx, http.MethodPut, "/collections/"+collection, body)
	if err != nil {
		return err
	}
	// 409 means the collection already exists.
	if status != http.StatusOK && status != http.StatusConflict {
		return fmt.Errorf("Qdrant create collection %s: status %d: %s", collection, status, respBody)
	}
	return nil
}

func (q *Qdrant) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	qp := make([]map[string]interface{}, 0, len(points))
	for _, p := range points {
		qp = append(qp, map[string]interface{}{
			"id":     pointID(p.Key),
			"vector": p.Vector,
			"payload": qdrantPayload{
				Key:      p.Key,
				RepoID:   p.Payload.RepoID,
				PRNumber: p.Payload.PRNumber,
			},
		})
	}
	status, respBody, err := q.do(ctx, http.MethodPut,
		"/collections/"+collection+"/points?wait=true",
		map[string]interface{}{"points": qp})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("Qdrant upsert into %s: status %d: %s", collection, status, respBody)
	}
	return nil
}

type qdrantSearchResult struct {
	Result []struct {
		Score   float32       `json:"score"`
		Payload qdrantPayload `json:"payload"`
	} `json:"result"`
}

func (q *Qdrant) Search(ctx context.Context, collection string, repoID int64, vector []float32, limit int) ([]Match, error) {
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "repo_id", "match": map[string]interface{}{"value": repoID}},
			},
		},
	}
	status, respBody, err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("Qdrant search in %s: status %d: %s", collection, status, respBody)
	}

	var result qdrantSearchResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing Qdrant search response: %w", err)
	}
	matches := make([]Match, 0, len(result.Result))
	for _, r := range result.Result {
		matches = append(matches, Match{
			Key:   r.Payload.Key,
			Score: r.Score,
			Payload: Payload{
				RepoID:   r.Payload.RepoID,
				PRNumber: r.Payload.PRNumber,
			},
		})
	}
	return matches, nil
}

type qdrantGetResult struct {
	Result []struct {
		Vector  []float32     `json:"vector"`
		Payload qdrantPayload `json:"payload"`
	} `json:"result"`
}

func (q *Qdrant) Get(ctx context.Context, collection string, key string) (*Point, error) {
	body := map[string]interface{}{
		"ids":          []uint64{pointID(key)},
		"with_payload": true,
		"with_vector":  true,
	}
	status, respBody, err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points", body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("Qdrant get from %s: status %d: %s", collection, status, respBody)
	}

	var result qdrantGetResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing Qdrant get response: %w", err)
	}
	for _, r := range result.Result {
		// Guard against an FNV collision returning the wrong point.
		if r.Payload.Key != key {
			continue
		}
		return &Point{
			Key:    r.Payload.Key,
			Vector: r.Vector,
			Payload: Payload{
				RepoID:   r.Payload.RepoID,
				PRNumber: r.Payload.PRNumber,
			},
		}, nil
	}
	return nil, nil
}

func (q *Qdrant) DeleteRepo(ctx context.Context, collection string, repoID int64) error {
	body := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "repo_id", "match": map[string]interface{}{"value": repoID}},
			},
		},
	}
	status, respBody, err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return fmt.Errorf("Qdrant delete from %s: status %d: %s", collection, status, respBody)
	}
	return nil
}

func (q *Qdrant) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshalling Qdrant request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("creating Qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("calling Qdrant: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading Qdrant response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
