package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

const testDims = 128

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	idx, err := vector.NewIndex("flat", testDims)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := NewService(indexer.NewChunker(512, 50), embedding.NewHashEmbedder(testDims), idx, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// failingEmbedder returns err from every call.
type failingEmbedder struct {
	dims int
	err  error
}

func (e failingEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, e.err }
func (e failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, e.err
}
func (e failingEmbedder) Dimensions() int { return e.dims }
func (e failingEmbedder) Name() string    { return "failing" }
func (e failingEmbedder) Close() error    { return nil }

func TestService_EndToEnd(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	n, err := svc.Ingest(ctx, "AI is powerful. ML is a subset of AI.", "doc1", "AI notes", nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 1 {
		t.Fatalf("chunks = %d, want 1", n)
	}

	ranked, err := svc.Query(ctx, "What is AI?", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("results = %d, want 1", len(ranked))
	}
	got := ranked[0]
	if got.Position != 0 || got.ChunkID != "doc1_chunk_0" || got.DocumentID != "doc1" {
		t.Errorf("unexpected hit: %+v", got)
	}
	if got.Content != "AI is powerful ML is a subset of AI" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestNewService_DimensionMismatch(t *testing.T) {
	idx, _ := vector.NewIndex("linear", 64)
	_, err := NewService(indexer.NewChunker(512, 50), embedding.NewHashEmbedder(128), idx)
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if _, err := NewService(nil, embedding.NewHashEmbedder(64), idx); err == nil {
		t.Fatal("expected error for missing chunker")
	}
}

func TestIngest_Metadata(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := newTestService(t)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	text := strings.Repeat("The introduction explains the goal of the work. ", 30)
	n, err := svc.Ingest(ctx, text, "doc1", "Paper", map[string]interface{}{
		"author":        "someone",
		"document_name": "Overridden",
	})
	if err != nil {
		t.Fatal(err)
	}
	if n < 2 {
		t.Fatalf("expected several chunks, got %d", n)
	}
	if svc.Index().TotalVectors() != n {
		t.Fatalf("TotalVectors = %d, want %d", svc.Index().TotalVectors(), n)
	}
	for pos := 0; pos < n; pos++ {
		e, ok := svc.Index().Entry(pos)
		if !ok {
			t.Fatalf("missing entry %d", pos)
		}
		m := e.Metadata
		if m.String(vector.KeyChunkID) != "doc1_chunk_"+strconv.Itoa(pos) {
			t.Errorf("chunk_id = %q", m.String(vector.KeyChunkID))
		}
		if m.Int(KeyChunkIndex) != int64(pos) || m.Int(KeyTotalChunks) != int64(n) {
			t.Errorf("chunk_index/total_chunks = %v/%v", m[KeyChunkIndex], m[KeyTotalChunks])
		}
		if m.String(KeyDocumentName) != "Overridden" {
			t.Errorf("extra keys should override, got %q", m.String(KeyDocumentName))
		}
		if m.String("author") != "someone" {
			t.Errorf("author = %q", m.String("author"))
		}
		if m.String(KeyProcessingTimestamp) != "2026-01-02T03:04:05Z" {
			t.Errorf("timestamp = %q", m.String(KeyProcessingTimestamp))
		}
		if m.String(KeySection) == "" || m.String(vector.KeyContent) == "" {
			t.Errorf("missing section or content at %d", pos)
		}
		if m.Int(KeyOffsetEnd)-m.Int(KeyOffsetStart) != int64(len([]rune(m.String(vector.KeyContent)))) {
			t.Errorf("offsets do not match content length at %d", pos)
		}
	}

	// A second document continues at the next position.
	if _, err := svc.Ingest(ctx, "Another short note.", "doc2", "Note", nil); err != nil {
		t.Fatal(err)
	}
	e, ok := svc.Index().Entry(n)
	if !ok || e.Metadata.String(vector.KeyDocumentID) != "doc2" {
		t.Errorf("entry %d = %+v", n, e)
	}
}

func TestIngest_EmptyText(t *testing.T) {
	svc := newTestService(t)
	n, err := svc.Ingest(context.Background(), "   \n\t ", "doc1", "Empty", nil)
	if err != nil || n != 0 {
		t.Fatalf("Ingest = %d, %v", n, err)
	}
	if svc.Index().TotalVectors() != 0 {
		t.Error("nothing should be indexed")
	}
}

func TestIngest_EmbedFailureAddsNothing(t *testing.T) {
	idx, _ := vector.NewIndex("flat", 8)
	boom := errors.New("model offline")
	svc, err := NewService(indexer.NewChunker(512, 50), failingEmbedder{dims: 8, err: boom}, idx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Ingest(context.Background(), "Some text.", "d", "D", nil); !errors.Is(err, boom) {
		t.Fatalf("expected embed error, got %v", err)
	}
	if idx.TotalVectors() != 0 {
		t.Error("failed ingest must not add vectors")
	}
	if _, err := svc.Query(context.Background(), "q", 3); !errors.Is(err, boom) {
		t.Fatalf("expected embed error from query, got %v", err)
	}
}

func TestQuery(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if ranked, err := svc.Query(ctx, "anything", 5); err != nil || len(ranked) != 0 {
		t.Fatalf("empty index: %v, %v", ranked, err)
	}

	docs := []string{"Cats purr softly.", "Dogs bark loudly.", "Birds sing at dawn.", "Fish swim in water."}
	for i, d := range docs {
		if _, err := svc.Ingest(ctx, d, "doc"+strconv.Itoa(i), "", nil); err != nil {
			t.Fatal(err)
		}
	}
	ranked, vec, err := svc.Search(ctx, "Dogs bark loudly", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != testDims {
		t.Errorf("query embedding length = %d", len(vec))
	}
	if len(ranked) != 2 {
		t.Fatalf("results = %d, want 2", len(ranked))
	}
	if ranked[0].DocumentID != "doc1" {
		t.Errorf("best match = %s, want doc1", ranked[0].DocumentID)
	}
	if ranked[0].Similarity < ranked[1].Similarity {
		t.Error("results must be sorted by similarity")
	}
	if ranked, _ := svc.Query(ctx, "Dogs", 0); len(ranked) != 0 {
		t.Error("k=0 should return no results")
	}
}

func TestQuery_BlankText(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Ingest(ctx, "AI is powerful. ML is a subset of AI.", "doc1", "AI", nil); err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"", "  \n\t"} {
		ranked, err := svc.Query(ctx, q, 5)
		if err != nil {
			t.Fatalf("Query(%q): %v", q, err)
		}
		if ranked == nil || len(ranked) != 0 {
			t.Errorf("Query(%q) = %v, want empty", q, ranked)
		}
	}
	ans, err := svc.Answer(ctx, "", 5)
	if err != nil {
		t.Fatalf("Answer(\"\"): %v", err)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("sources = %v", ans.Sources)
	}
}

func TestRelevant(t *testing.T) {
	in := []RankedChunk{{Position: 0, Similarity: 0.5}, {Position: 1, Similarity: 0}, {Position: 2, Similarity: -0.1}}
	out := Relevant(in)
	if len(out) != 2 || out[0].Position != 0 || out[1].Position != 2 {
		t.Errorf("Relevant = %+v", out)
	}
}

func TestPersistOnIngest(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.bin")
	metaPath := filepath.Join(dir, "metadata.json")
	idx, _ := vector.NewIndex("linear", testDims, vector.WithPaths(indexPath, metaPath))
	svc, err := NewService(indexer.NewChunker(512, 50), embedding.NewHashEmbedder(testDims), idx, WithPersistOnIngest(true))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Ingest(context.Background(), "Persist me please.", "doc1", "P", nil); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{indexPath, metaPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s after ingest: %v", p, err)
		}
	}

	reloaded, _ := vector.NewIndex("linear", testDims, vector.WithPaths(indexPath, metaPath))
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if reloaded.TotalVectors() != 1 {
		t.Errorf("reloaded TotalVectors = %d", reloaded.TotalVectors())
	}
}

func TestIngestDocument_Registry(t *testing.T) {
	st := newTestStorage(t)
	svc := newTestService(t, WithStorage(st))
	ctx := context.Background()

	doc, err := svc.IngestDocument(ctx, &models.DocumentInput{
		Name:     "Guide",
		Content:  "Install the tool. Run it. Read the output.",
		Metadata: map[string]interface{}{"title": "Guide"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(doc.ID, "doc_") || len(doc.ID) != len("doc_")+8 {
		t.Errorf("generated id = %q", doc.ID)
	}
	if doc.Status != models.StatusCompleted || doc.ChunkCount != 1 {
		t.Errorf("doc = %+v", doc)
	}

	stored, err := svc.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.StatusCompleted || stored.ChunkCount != 1 || stored.Name != "Guide" {
		t.Errorf("stored = %+v", stored)
	}

	list, err := svc.ListDocuments(ctx, 0, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListDocuments = %v, %v", list, err)
	}

	if _, err := svc.IngestDocument(ctx, &models.DocumentInput{Content: "  "}); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestIngestDocument_FailureRecorded(t *testing.T) {
	st := newTestStorage(t)
	idx, _ := vector.NewIndex("flat", 8)
	svc, err := NewService(indexer.NewChunker(512, 50),
		failingEmbedder{dims: 8, err: errors.New("quota exceeded")}, idx, WithStorage(st))
	if err != nil {
		t.Fatal(err)
	}
	doc, err := svc.IngestDocument(context.Background(), &models.DocumentInput{ID: "doc_fail", Content: "Some text."})
	if err == nil {
		t.Fatal("expected error")
	}
	if doc == nil || doc.Status != models.StatusFailed {
		t.Fatalf("doc = %+v", doc)
	}
	stored, err := st.GetDocument(context.Background(), "doc_fail")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.StatusFailed || !strings.Contains(stored.Error, "quota exceeded") {
		t.Errorf("stored = %+v", stored)
	}
}

func TestGetDocument_NoStorage(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.GetDocument(context.Background(), "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	docs, err := svc.ListDocuments(context.Background(), 0, 10)
	if err != nil || len(docs) != 0 {
		t.Errorf("ListDocuments = %v, %v", docs, err)
	}
}

func TestStatus(t *testing.T) {
	dir := t.TempDir()
	st := newTestStorage(t)
	svc := newTestService(t, WithStorage(st))
	ctx := context.Background()
	if _, err := svc.IngestDocument(ctx, &models.DocumentInput{Name: "a", Content: "One. Two."}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "blob"), make([]byte, 100), 0600); err != nil {
		t.Fatal(err)
	}

	status, err := svc.Status(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if status.IndexType != "flat" || status.Dimensions != testDims || status.TotalVectors != 1 {
		t.Errorf("status = %+v", status)
	}
	if status.Embedder != "hash" {
		t.Errorf("embedder = %q", status.Embedder)
	}
	if status.TotalDocuments != 1 || status.DocumentsByState[models.StatusCompleted] != 1 {
		t.Errorf("documents = %d %v", status.TotalDocuments, status.DocumentsByState)
	}
	if status.DiskUsageBytes < 100 {
		t.Errorf("disk usage = %d", status.DiskUsageBytes)
	}
}

func TestRebuild(t *testing.T) {
	st := newTestStorage(t)
	svc := newTestService(t, WithStorage(st))
	ctx := context.Background()

	for _, content := range []string{"First document. It has two sentences.", "Second document."} {
		if _, err := svc.IngestDocument(ctx, &models.DocumentInput{Content: content}); err != nil {
			t.Fatal(err)
		}
	}
	before := svc.Index().TotalVectors()
	first, _ := svc.Index().Entry(0)

	svc.Reset()
	if svc.Index().TotalVectors() != 0 {
		t.Fatal("Reset should empty the index")
	}
	n, err := svc.Rebuild(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("replayed = %d, want 2", n)
	}
	if svc.Index().TotalVectors() != before {
		t.Errorf("TotalVectors = %d, want %d", svc.Index().TotalVectors(), before)
	}
	again, _ := svc.Index().Entry(0)
	if again.Metadata.String(vector.KeyChunkID) != first.Metadata.String(vector.KeyChunkID) {
		t.Errorf("rebuild order changed: %s vs %s",
			again.Metadata.String(vector.KeyChunkID), first.Metadata.String(vector.KeyChunkID))
	}
}

func TestRebuild_NoStorage(t *testing.T) {
	if _, err := newTestService(t).Rebuild(context.Background()); err == nil {
		t.Error("expected error without a registry")
	}
}
