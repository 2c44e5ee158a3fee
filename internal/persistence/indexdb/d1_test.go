package indexdb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestD1Index_RetainsBatchOnFlushFailure(t *testing.T) {
	var mu sync.Mutex
	reqCount := 0
	var kinds []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqCount++
		thisReq := reqCount
		mu.Unlock()

		if thisReq <= 3 {
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("x-rs-index-token") != "secret" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}

		var body struct {
			Events []struct {
				Kind   string `json:"kind"`
				Source string `json:"source"`
			} `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mu.Lock()
		for _, ev := range body.Events {
			kinds = append(kinds, ev.Kind+"/"+ev.Source)
		}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	idx, err := OpenD1(D1Config{
		Endpoint:      srv.URL,
		Token:         "secret",
		Source:        "levelgen",
		BatchSize:     1,
		FlushInterval: 20 * time.Millisecond,
		HTTPTimeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("OpenD1: %v", err)
	}
	defer func() { _ = idx.Close() }()

	idx.RecordScene("/abs/1.scene.zst", testScene(t, 1))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(kinds) >= 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) < 1 {
		t.Fatalf("expected retained batch to be eventually delivered; reqCount=%d", reqCount)
	}
	if kinds[0] != "scene/levelgen" {
		t.Fatalf("event=%q want scene/levelgen", kinds[0])
	}
	if idx.Drops() != 0 {
		t.Fatalf("unexpected drops: %d", idx.Drops())
	}
}

func TestOpenD1_RequiresEndpoint(t *testing.T) {
	if _, err := OpenD1(D1Config{}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
