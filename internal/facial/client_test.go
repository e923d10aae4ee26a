package facial

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recognize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Photo     string  `json:"photo"`
			Threshold float64 `json:"threshold"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Photo == "" || req.Threshold != 0.40 {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"recognized": true, "employee_id": 7, "similarity": 0.91,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	match, err := c.Recognize(context.Background(), []byte("jpeg-bytes"), 0.40)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !match.Recognized || match.EmployeeID != 7 || match.Similarity != 0.91 {
		t.Fatalf("unexpected match: %+v", match)
	}
}

func TestClientNoMatchIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"recognized": false})
	}))
	defer srv.Close()

	match, err := NewClient(srv.URL).Recognize(context.Background(), []byte("x"), 0.40)
	if err != nil {
		t.Fatalf("clean non-match must not error: %v", err)
	}
	if match.Recognized {
		t.Fatal("expected unrecognized")
	}
}

func TestClientServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Recognize(context.Background(), []byte("x"), 0.40)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithTimeout(20*time.Millisecond))
	_, err := client.Recognize(context.Background(), []byte("x"), 0.40)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on timeout, got %v", err)
	}
}

func TestBestMatchPrefersHighestScore(t *testing.T) {
	templates := []*Template{
		{EmployeeID: 1, Data: "whorl-left-alpha"},
		{EmployeeID: 2, Data: "whorl-left-alphabet"},
		{EmployeeID: 3, Data: "unrelated"},
	}
	match, ok := BestMatch(templates, "whorl-left-alphabet", 0.50)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.EmployeeID != 2 || match.Similarity != 1 {
		t.Fatalf("unexpected winner: %+v", match)
	}

	if _, ok := BestMatch(templates, "zzzzzz", 0.50); ok {
		t.Fatal("no template should match")
	}
	if _, ok := BestMatch(nil, "whorl", 0.50); ok {
		t.Fatal("empty enrollment never matches")
	}
}

func TestSimilarityBounds(t *testing.T) {
	if Similarity("", "abc") != 0 || Similarity("abc", "") != 0 {
		t.Fatal("empty template scores 0")
	}
	if Similarity("same-template", "same-template") != 1 {
		t.Fatal("identical templates score 1")
	}
	s := Similarity("ridge-abc", "ridge-abd")
	if s <= 0 || s >= 1 {
		t.Fatalf("partial overlap should be in (0,1), got %f", s)
	}
}
