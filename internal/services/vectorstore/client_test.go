package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tubeindex/internal/config"
	"tubeindex/internal/services"
)

func testConfig(host string) config.VectorStore {
	return config.VectorStore{
		APIKey:         "test-key",
		IndexHost:      host,
		Namespace:      "youtube",
		BatchSize:      100,
		TimeoutSeconds: 5,
	}
}

func TestUpsertSendsNamespaceAndVectors(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/upsert" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if key := r.Header.Get("Api-Key"); key != "test-key" {
			t.Errorf("unexpected api key header %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"upsertedCount":1}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	err := client.Upsert(context.Background(), []Vector{
		{ID: "hash1", Values: []float32{0.1, 0.2}, Metadata: map[string]any{"video_id": "vid01"}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got["namespace"] != "youtube" {
		t.Errorf("expected namespace youtube, got %v", got["namespace"])
	}
	vectors, ok := got["vectors"].([]any)
	if !ok || len(vectors) != 1 {
		t.Errorf("unexpected vectors payload: %v", got["vectors"])
	}
}

func TestUpsertRejectsOversizedBatch(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.BatchSize = 1
	client := NewClient(cfg)

	err := client.Upsert(context.Background(), []Vector{
		{ID: "a", Values: []float32{1}},
		{ID: "b", Values: []float32{2}},
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestExistingIDsReturnsPresentSubset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/fetch" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		ids := r.URL.Query()["ids"]
		if len(ids) != 3 {
			t.Errorf("expected 3 ids in query, got %v", ids)
		}
		w.Write([]byte(`{"vectors":{"hash1":{"id":"hash1"},"hash3":{"id":"hash3"}}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	existing, err := client.ExistingIDs(context.Background(), []string{"hash1", "hash2", "hash3"})
	if err != nil {
		t.Fatalf("existing ids: %v", err)
	}
	if !existing["hash1"] || existing["hash2"] || !existing["hash3"] {
		t.Errorf("unexpected existing set: %v", existing)
	}
}

func TestQueryReturnsRankedMatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["topK"] != float64(5) {
			t.Errorf("expected topK 5, got %v", body["topK"])
		}
		if body["includeMetadata"] != true {
			t.Error("expected includeMetadata true")
		}
		w.Write([]byte(`{"matches":[{"id":"hash1","score":0.92,"metadata":{"text":"hello"}}]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	matches, err := client.Query(context.Background(), []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "hash1" || matches[0].Score != 0.92 {
		t.Errorf("unexpected matches: %+v", matches)
	}
}

func TestDescribeStatsReadsNamespaceCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dimension":1536,"totalVectorCount":5432,"namespaces":{"youtube":{"vectorCount":5000}}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	stats, err := client.DescribeStats(context.Background())
	if err != nil {
		t.Fatalf("describe stats: %v", err)
	}
	if stats.TotalVectors != 5432 || stats.NamespaceVectors != 5000 || stats.Dimension != 1536 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, services.ErrRateLimit},
		{http.StatusUnauthorized, services.ErrConfiguration},
		{http.StatusInternalServerError, services.ErrTransient},
		{http.StatusBadRequest, services.ErrValidation},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := NewClient(testConfig(server.URL))
		_, err := client.DescribeStats(context.Background())
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		server.Close()
	}
}
