// Package pipeline turns an uploaded file into indexed, queryable units. A
// worker claims a job, then walks the stages in order: download, extract,
// segment, embed, optional classification and structured extraction, and a
// finalize step that writes the index batch and flips the document ready.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/config"
	"github.com/insuredocs/docquery/internal/embedding"
	"github.com/insuredocs/docquery/internal/extractor"
	"github.com/insuredocs/docquery/internal/indexstore"
	"github.com/insuredocs/docquery/internal/jobs"
	"github.com/insuredocs/docquery/internal/models"
	"github.com/insuredocs/docquery/internal/segmenter"
	"github.com/insuredocs/docquery/internal/storage"
	"github.com/insuredocs/docquery/internal/structured"
)

// Progress checkpoints per stage. Each stage reports its own completion
// point; within-stage granularity is not worth the write traffic.
const (
	progressDownload   = 10
	progressExtract    = 40
	progressSegment    = 55
	progressEmbed      = 70
	progressClassify   = 80
	progressStructured = 95
	progressDone       = 100
)

// DocumentStore is the slice of the document service the worker needs.
type DocumentStore interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Document, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkReady(ctx context.Context, id uuid.UUID, pageCount int) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	SetType(ctx context.Context, id uuid.UUID, docType string) error
	SetStructured(ctx context.Context, id uuid.UUID, data []byte, schemaVersion int) error
	SetStructuredError(ctx context.Context, id uuid.UUID, reason string) error
}

type Worker struct {
	queue      jobs.Store
	docs       DocumentStore
	blobs      storage.BlobStore
	extract    extractor.Extractor
	seg        *segmenter.Segmenter
	embedder   *embedding.Service
	index      indexstore.Store
	structured *structured.Extractor
	cfg        config.PipelineConfig
}

func NewWorker(
	queue jobs.Store,
	docs DocumentStore,
	blobs storage.BlobStore,
	extract extractor.Extractor,
	seg *segmenter.Segmenter,
	embedder *embedding.Service,
	index indexstore.Store,
	structuredExtractor *structured.Extractor,
	cfg config.PipelineConfig,
) *Worker {
	return &Worker{
		queue:      queue,
		docs:       docs,
		blobs:      blobs,
		extract:    extract,
		seg:        seg,
		embedder:   embedder,
		index:      index,
		structured: structuredExtractor,
		cfg:        cfg,
	}
}

// Run polls for jobs with cfg.Workers concurrent loops until ctx is
// cancelled. It blocks until all loops have drained.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.loop(ctx, n)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, n int) {
	log := slog.With("worker", n)
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("claim failed", "error", err)
			}
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}
		w.Process(ctx, job)
	}
}

// sleep waits one poll interval with jitter so idle workers spread their
// claim queries out.
func (w *Worker) sleep(ctx context.Context) {
	d := w.cfg.PollInterval
	d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// Process runs one claimed job to completion or failure.
func (w *Worker) Process(ctx context.Context, job *models.ProcessingJob) {
	log := slog.With("job_id", job.ID, "document_id", job.DocumentID)
	log.Info("processing started", "retry", job.RetryCount)

	if err := w.run(ctx, job); err != nil {
		var se *models.StageError
		stage := models.StageDownload
		if errors.As(err, &se) {
			stage = se.Stage
		}
		log.Error("processing failed", "stage", stage, "error", err)
		w.fail(ctx, job, stage, err)
		return
	}
	log.Info("processing finished")
}

func (w *Worker) run(ctx context.Context, job *models.ProcessingJob) error {
	doc, err := w.docs.Get(ctx, job.TenantID, job.DocumentID)
	if err != nil {
		return models.NewStageError(models.StageDownload, err)
	}
	if err := w.docs.MarkProcessing(ctx, doc.ID); err != nil {
		return models.NewStageError(models.StageDownload, err)
	}

	data, err := w.download(ctx, doc)
	if err != nil {
		return models.NewStageError(models.StageDownload, err)
	}
	w.report(ctx, job, models.StageDownload, progressDownload)

	extracted, err := w.extract.Extract(ctx, data, doc.FilePath)
	if err != nil {
		return models.NewStageError(models.StageExtract, err)
	}
	w.report(ctx, job, models.StageExtract, progressExtract)

	segments := w.seg.Segment(extracted.Markdown)
	if len(segments) == 0 {
		return models.NewStageError(models.StageSegment, fmt.Errorf("%w: document has no extractable content", models.ErrExtraction))
	}
	units := buildUnits(doc, segments)
	w.report(ctx, job, models.StageSegment, progressSegment)

	if err := w.embedder.EmbedUnits(ctx, units); err != nil {
		return models.NewStageError(models.StageEmbed, err)
	}
	w.report(ctx, job, models.StageEmbed, progressEmbed)

	// Classification and structured extraction are enrichment. They log and
	// record their own failures instead of failing the job.
	docType := doc.DocumentType
	if w.cfg.ClassifyEnabled && w.structured != nil {
		docType = w.classify(ctx, doc, extracted.Markdown)
	}
	w.report(ctx, job, models.StageClassify, progressClassify)

	if w.cfg.StructuredEnabled && w.structured != nil {
		w.extractStructured(ctx, doc, docType, extracted.Markdown)
	}
	w.report(ctx, job, models.StageStructured, progressStructured)

	if err := w.index.Index(ctx, doc.ID, units); err != nil {
		return models.NewStageError(models.StageFinalize, err)
	}
	if err := w.docs.MarkReady(ctx, doc.ID, extracted.PageCount); err != nil {
		return models.NewStageError(models.StageFinalize, err)
	}
	w.report(ctx, job, models.StageFinalize, progressDone)

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		return models.NewStageError(models.StageFinalize, err)
	}
	return nil
}

func (w *Worker) download(ctx context.Context, doc *models.Document) ([]byte, error) {
	rc, err := w.blobs.Download(ctx, doc.FilePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (w *Worker) classify(ctx context.Context, doc *models.Document, text string) string {
	docType, err := w.structured.ClassifyType(ctx, text)
	if err != nil {
		slog.Warn("document classification failed", "document_id", doc.ID, "error", err)
		return doc.DocumentType
	}
	if err := w.docs.SetType(ctx, doc.ID, docType); err != nil {
		slog.Warn("persist document type failed", "document_id", doc.ID, "error", err)
	}
	return docType
}

func (w *Worker) extractStructured(ctx context.Context, doc *models.Document, docType, text string) {
	sctx, cancel := context.WithTimeout(ctx, w.cfg.StructuredTimeout)
	defer cancel()

	data, err := w.structured.Extract(sctx, docType, text)
	if err != nil {
		slog.Warn("structured extraction failed", "document_id", doc.ID, "error", err)
		if werr := w.docs.SetStructuredError(ctx, doc.ID, err.Error()); werr != nil {
			slog.Warn("persist structured error failed", "document_id", doc.ID, "error", werr)
		}
		return
	}
	if data == nil {
		return
	}
	if err := w.docs.SetStructured(ctx, doc.ID, data, w.structured.SchemaVersion()); err != nil {
		slog.Warn("persist structured data failed", "document_id", doc.ID, "error", err)
	}
}

func (w *Worker) report(ctx context.Context, job *models.ProcessingJob, stage string, percent int) {
	if err := w.queue.ReportProgress(ctx, job.ID, stage, percent); err != nil {
		slog.Warn("report progress failed", "job_id", job.ID, "stage", stage, "error", err)
	}
}

// fail records the stage-tagged error and, once retries are exhausted, marks
// the document failed. While retries remain the document stays processing so
// readers keep seeing an in-flight state.
func (w *Worker) fail(ctx context.Context, job *models.ProcessingJob, stage string, cause error) {
	if err := w.queue.Fail(ctx, job.ID, stage, cause.Error()); err != nil {
		slog.Error("record job failure failed", "job_id", job.ID, "error", err)
		return
	}
	updated, err := w.queue.Get(ctx, job.ID)
	if err != nil {
		slog.Error("reload failed job failed", "job_id", job.ID, "error", err)
		return
	}
	if updated.Status == models.JobStatusFailed {
		if err := w.docs.MarkFailed(ctx, job.DocumentID, cause.Error()); err != nil {
			slog.Error("mark document failed failed", "document_id", job.DocumentID, "error", err)
		}
	}
}

func buildUnits(doc *models.Document, segments []segmenter.Segment) []models.Unit {
	units := make([]models.Unit, len(segments))
	for i, seg := range segments {
		units[i] = models.Unit{
			ID:          uuid.New(),
			DocumentID:  doc.ID,
			TenantID:    doc.TenantID,
			Ordinal:     i,
			PageStart:   seg.PageStart,
			PageEnd:     seg.PageEnd,
			ContentType: seg.ContentType,
			Content:     seg.Content,
			Summary:     seg.Summary,
			TokenCount:  seg.TokenCount,
		}
	}
	return units
}
