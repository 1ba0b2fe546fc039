package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/config"
	"github.com/insuredocs/docquery/internal/embedding"
	"github.com/insuredocs/docquery/internal/extractor"
	"github.com/insuredocs/docquery/internal/indexstore"
	"github.com/insuredocs/docquery/internal/jobs"
	"github.com/insuredocs/docquery/internal/llm"
	"github.com/insuredocs/docquery/internal/models"
	"github.com/insuredocs/docquery/internal/segmenter"
)

type memDocs struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.Document
}

func newMemDocs(docs ...*models.Document) *memDocs {
	m := &memDocs{docs: map[uuid.UUID]*models.Document{}}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *memDocs) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, models.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDocs) update(id uuid.UUID, fn func(*models.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return models.ErrDocumentNotFound
	}
	fn(d)
	return nil
}

func (m *memDocs) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return m.update(id, func(d *models.Document) { d.Status = models.DocStatusProcessing })
}

func (m *memDocs) MarkReady(ctx context.Context, id uuid.UUID, pageCount int) error {
	return m.update(id, func(d *models.Document) {
		d.Status = models.DocStatusReady
		d.PageCount = pageCount
	})
}

func (m *memDocs) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return m.update(id, func(d *models.Document) {
		d.Status = models.DocStatusFailed
		d.ErrorMessage = reason
	})
}

func (m *memDocs) SetType(ctx context.Context, id uuid.UUID, docType string) error {
	return m.update(id, func(d *models.Document) { d.DocumentType = docType })
}

func (m *memDocs) SetStructured(ctx context.Context, id uuid.UUID, data []byte, schemaVersion int) error {
	return m.update(id, func(d *models.Document) {
		d.StructuredData = data
		d.StructuredSchema = schemaVersion
		d.StructuredError = ""
	})
}

func (m *memDocs) SetStructuredError(ctx context.Context, id uuid.UUID, reason string) error {
	return m.update(id, func(d *models.Document) { d.StructuredError = reason })
}

type memBlobs struct {
	files map[string][]byte
	fail  bool
}

func (b *memBlobs) Upload(ctx context.Context, path string, data io.Reader, contentType string) error {
	raw, _ := io.ReadAll(data)
	b.files[path] = raw
	return nil
}

func (b *memBlobs) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	if b.fail {
		return nil, errors.New("storage unreachable")
	}
	raw, ok := b.files[path]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memBlobs) Delete(ctx context.Context, path string) error {
	delete(b.files, path)
	return nil
}

type fakeExtractor struct {
	markdown  string
	pageCount int
	err       error
}

func (e *fakeExtractor) Extract(ctx context.Context, data []byte, filename string) (*extractor.Result, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &extractor.Result{Markdown: e.markdown, PageCount: e.pageCount}, nil
}

type memIndex struct {
	mu    sync.Mutex
	units map[uuid.UUID][]models.Unit
}

func (s *memIndex) Index(ctx context.Context, docID uuid.UUID, units []models.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.units == nil {
		s.units = map[uuid.UUID][]models.Unit{}
	}
	s.units[docID] = units
	return nil
}

func (s *memIndex) Search(ctx context.Context, docID uuid.UUID, vec []float32, schemaVersion, k int) ([]indexstore.Candidate, error) {
	return nil, nil
}

func (s *memIndex) LexicalSearch(ctx context.Context, docID uuid.UUID, query string, schemaVersion, k int) ([]indexstore.Candidate, error) {
	return nil, nil
}

func (s *memIndex) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.units, docID)
	return nil
}

type embedOnlyGateway struct{}

func (embedOnlyGateway) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, errors.New("not used")
}

func (embedOnlyGateway) CompleteStream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not used")
}

func (embedOnlyGateway) Embed(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	vecs := make([][]float32, len(req.Input))
	for i := range vecs {
		vecs[i] = []float32{1, 0, 0}
	}
	return &llm.EmbeddingResponse{Embeddings: vecs}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []models.JobProgress
}

func (n *recordingNotifier) PublishProgress(ctx context.Context, p models.JobProgress) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, p)
}

func (n *recordingNotifier) all() []models.JobProgress {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.JobProgress(nil), n.updates...)
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		Workers:           1,
		PollInterval:      10 * time.Millisecond,
		StaleAfter:        time.Minute,
		MaxRetries:        2,
		StructuredTimeout: time.Second,
	}
}

const sampleMarkdown = `--- PAGE 1 ---

# Policy Declarations

This policy provides coverage for the insured premises and scheduled
property, subject to the terms below. ` + `

| Coverage | Limit | Deductible |
|----------|-------|------------|
| Dwelling | 400000 | 2500 |
| Liability | 300000 | 0 |

--- PAGE 2 ---

Claims must be reported within thirty days of the date of loss.
`

func newTestWorker(t *testing.T, queue jobs.Store, docs DocumentStore, blobs *memBlobs, ext extractor.Extractor, index indexstore.Store) *Worker {
	t.Helper()
	seg := segmenter.New(segmenter.Options{TargetTokens: 60, OverlapTokens: 8, MinTokens: 10})
	embedder := embedding.NewService(embedOnlyGateway{}, "test-embed", 3)
	return NewWorker(queue, docs, blobs, ext, seg, embedder, index, nil, testPipelineConfig())
}

func TestProcessHappyPath(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	queue := jobs.NewMemoryStore(notifier, 2)

	doc := &models.Document{ID: uuid.New(), TenantID: uuid.New(), Title: "policy", FilePath: "t/doc.pdf", Status: models.DocStatusUploaded}
	docs := newMemDocs(doc)
	blobs := &memBlobs{files: map[string][]byte{"t/doc.pdf": []byte("%PDF")}}
	index := &memIndex{}

	job, err := queue.Enqueue(ctx, doc.ID, doc.TenantID)
	if err != nil {
		t.Fatal(err)
	}
	claimed, err := queue.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	w := newTestWorker(t, queue, docs, blobs, &fakeExtractor{markdown: sampleMarkdown, pageCount: 2}, index)
	w.Process(ctx, claimed)

	final, err := queue.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("job status = %s (%s), want completed", final.Status, final.ErrorMessage)
	}
	if final.Progress != 100 {
		t.Errorf("final progress = %d, want 100", final.Progress)
	}

	got, _ := docs.Get(ctx, doc.TenantID, doc.ID)
	if got.Status != models.DocStatusReady {
		t.Errorf("document status = %s, want ready", got.Status)
	}
	if got.PageCount != 2 {
		t.Errorf("page count = %d, want 2", got.PageCount)
	}

	units := index.units[doc.ID]
	if len(units) == 0 {
		t.Fatal("no units indexed")
	}
	var tables int
	for _, u := range units {
		if len(u.Embedding) == 0 {
			t.Errorf("unit %d missing embedding", u.Ordinal)
		}
		if u.SchemaVersion != 3 {
			t.Errorf("unit %d schema version = %d, want 3", u.Ordinal, u.SchemaVersion)
		}
		if u.ContentType == models.UnitTypeTable {
			tables++
			if !strings.Contains(u.Content, "Dwelling") {
				t.Error("table unit lost its rows")
			}
		}
	}
	if tables != 1 {
		t.Errorf("indexed %d table units, want 1", tables)
	}

	// Progress never decreases across the published sequence.
	updates := notifier.all()
	last := -1
	for _, u := range updates {
		if u.Percent < last {
			t.Fatalf("progress regressed: %v", updates)
		}
		last = u.Percent
	}
}

func TestProcessDownloadFailureRetries(t *testing.T) {
	ctx := context.Background()
	queue := jobs.NewMemoryStore(jobs.NopNotifier{}, 2)

	doc := &models.Document{ID: uuid.New(), TenantID: uuid.New(), FilePath: "t/doc.pdf", Status: models.DocStatusUploaded}
	docs := newMemDocs(doc)
	blobs := &memBlobs{files: map[string][]byte{}, fail: true}

	if _, err := queue.Enqueue(ctx, doc.ID, doc.TenantID); err != nil {
		t.Fatal(err)
	}
	w := newTestWorker(t, queue, docs, blobs, &fakeExtractor{}, &memIndex{})

	// First attempt fails and re-pends; document is not failed yet.
	claimed, _ := queue.ClaimNext(ctx)
	w.Process(ctx, claimed)

	j, _ := queue.Get(ctx, claimed.ID)
	if j.Status != models.JobStatusPending {
		t.Fatalf("after attempt 1: status = %s, want pending", j.Status)
	}
	if j.Stage != models.StageDownload {
		t.Errorf("failure stage = %s, want download", j.Stage)
	}
	got, _ := docs.Get(ctx, doc.TenantID, doc.ID)
	if got.Status == models.DocStatusFailed {
		t.Error("document failed before retries were exhausted")
	}

	// Second attempt exhausts the budget and fails the document.
	claimed, _ = queue.ClaimNext(ctx)
	w.Process(ctx, claimed)

	j, _ = queue.Get(ctx, claimed.ID)
	if j.Status != models.JobStatusFailed {
		t.Fatalf("after attempt 2: status = %s, want failed", j.Status)
	}
	got, _ = docs.Get(ctx, doc.TenantID, doc.ID)
	if got.Status != models.DocStatusFailed {
		t.Errorf("document status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("document missing failure reason")
	}
}

func TestProcessExtractFailureTagsStage(t *testing.T) {
	ctx := context.Background()
	queue := jobs.NewMemoryStore(jobs.NopNotifier{}, 1)

	doc := &models.Document{ID: uuid.New(), TenantID: uuid.New(), FilePath: "t/doc.pdf"}
	docs := newMemDocs(doc)
	blobs := &memBlobs{files: map[string][]byte{"t/doc.pdf": []byte("%PDF")}}

	if _, err := queue.Enqueue(ctx, doc.ID, doc.TenantID); err != nil {
		t.Fatal(err)
	}
	claimed, _ := queue.ClaimNext(ctx)

	w := newTestWorker(t, queue, docs, blobs, &fakeExtractor{err: models.ErrExtraction}, &memIndex{})
	w.Process(ctx, claimed)

	j, _ := queue.Get(ctx, claimed.ID)
	if j.Stage != models.StageExtract {
		t.Errorf("failure stage = %s, want extract", j.Stage)
	}
	if j.Status != models.JobStatusFailed {
		t.Errorf("status = %s, want failed with maxRetries=1", j.Status)
	}
}

func TestRunDrainsOnCancel(t *testing.T) {
	queue := jobs.NewMemoryStore(jobs.NopNotifier{}, 1)
	w := newTestWorker(t, queue, newMemDocs(), &memBlobs{files: map[string][]byte{}}, &fakeExtractor{}, &memIndex{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool did not stop after cancellation")
	}
}
