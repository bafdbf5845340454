package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/kensaku/internal/models"
)

func TestClient_SearchAndQuery(t *testing.T) {
	var gotTopK int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.SearchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotTopK = req.TopK
		switch r.URL.Path {
		case "/api/v1/search":
			_ = json.NewEncoder(w).Encode(models.SearchResponse{Query: req.Query, Results: sampleResponse().Results})
		case "/api/v1/query":
			_ = json.NewEncoder(w).Encode(models.QueryResponse{Query: req.Query, Answer: "yes"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	sr, err := c.Search(context.Background(), "ai", 3)
	if err != nil {
		t.Fatal(err)
	}
	if sr.Query != "ai" || len(sr.Results) != 1 || gotTopK != 3 {
		t.Errorf("search = %+v (top_k %d)", sr, gotTopK)
	}
	qr, err := c.Query(context.Background(), "ai?", 0)
	if err != nil {
		t.Fatal(err)
	}
	if qr.Answer != "yes" {
		t.Errorf("answer = %q", qr.Answer)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Invalid request body"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Search(context.Background(), "", 1)
	if err == nil || !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "Invalid request body") {
		t.Errorf("err = %v", err)
	}
}

func TestClient_WatchDirectories(t *testing.T) {
	dirs := []string{"/a"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string][]string{"directories": dirs})
		case http.MethodPost:
			var body struct {
				Path string `json:"path"`
				Sync bool   `json:"sync"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if !body.Sync {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			dirs = append(dirs, body.Path)
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			p := r.URL.Query().Get("path")
			out := dirs[:0]
			for _, d := range dirs {
				if d != p {
					out = append(out, d)
				}
			}
			dirs = out
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL)
	if err := c.AddWatchDirectory(ctx, "/b c"); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveWatchDirectory(ctx, "/a"); err != nil {
		t.Fatal(err)
	}
	got, err := c.WatchDirectories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "/b c" {
		t.Errorf("directories = %v", got)
	}
}

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.StatusResponse{IndexType: "linear", TotalVectors: 4})
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.IndexType != "linear" || st.TotalVectors != 4 {
		t.Errorf("status = %+v", st)
	}
}
