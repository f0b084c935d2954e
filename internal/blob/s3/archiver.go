package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/winyoulife/arbengine/internal/domain"
)

// ExecutionArchiveStore is the slice of the execution store the archiver
// needs. The Postgres store satisfies it through its ListBefore method.
type ExecutionArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionRecord, error)
}

// OpportunityArchiveStore is the slice of the opportunity store the archiver
// needs.
type OpportunityArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error)
}

// Archiver implements domain.Archiver: it queries records older than a
// cutoff, serialises them to JSONL, and uploads the file to object storage.
//
// Archived rows are NOT deleted from the primary store here. Pruning is a
// separate explicit step, run after the archive has been verified.
type Archiver struct {
	writer     domain.BlobWriter
	executions ExecutionArchiveStore
	opps       OpportunityArchiveStore
	audit      domain.AuditStore
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. audit may be nil when no audit store is
// configured.
func NewArchiver(writer domain.BlobWriter, executions ExecutionArchiveStore, opps OpportunityArchiveStore, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer:     writer,
		executions: executions,
		opps:       opps,
		audit:      audit,
	}
}

// ArchiveExecutions uploads all execution records started before the cutoff
// to archive/executions/YYYY-MM.jsonl and returns the number of records
// written.
func (a *Archiver) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.executions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions marshal: %w", err)
	}

	path := archivePath("executions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive executions upload: %w", err)
	}

	count := int64(len(records))
	if err := a.logArchive(ctx, "archive.executions", path, count, before); err != nil {
		return count, err
	}
	return count, nil
}

// ArchiveOpportunities uploads all opportunities detected before the cutoff
// to archive/opportunities/YYYY-MM.jsonl and returns the number of records
// written.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.opps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := archivePath("opportunities", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}

	count := int64(len(opps))
	if err := a.logArchive(ctx, "archive.opportunities", path, count, before); err != nil {
		return count, err
	}
	return count, nil
}

func (a *Archiver) logArchive(ctx context.Context, event, path string, count int64, before time.Time) error {
	if a.audit == nil {
		return nil
	}
	err := a.audit.Log(ctx, event, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("s3blob: %s audit log: %w", event, err)
	}
	return nil
}

// archivePath builds the object key, partitioned by the cutoff year-month:
//
//	archive/executions/2026-08.jsonl
//	archive/opportunities/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
