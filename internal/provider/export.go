package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/storage"
	"github.com/hadiwinata/mediaforge/pkg/zip"
)

// ExportGateway serves the export module locally: it bundles the artifacts
// of previously completed jobs into a zip archive in the artifact store. No
// vendor is involved, but it implements Gateway so the orchestrator treats
// export jobs like any other.
type ExportGateway struct {
	jobs  domain.JobRepository
	store *storage.FileStore
}

// NewExportGateway wires the export module.
func NewExportGateway(jobs domain.JobRepository, store *storage.FileStore) *ExportGateway {
	return &ExportGateway{jobs: jobs, store: store}
}

// Dispatch implements Gateway. Export work happens entirely in Await; the
// receipt carries the job id.
func (g *ExportGateway) Dispatch(ctx context.Context, job *domain.Job) (Receipt, error) {
	if len(job.Input.SourceJobIDs) == 0 {
		return Receipt{}, &Error{Kind: KindInvalidRequest, Message: "export requires at least one source job"}
	}
	return Receipt{TaskID: job.ID, Provider: "export"}, nil
}

// Await implements Gateway.
func (g *ExportGateway) Await(ctx context.Context, receipt Receipt) (Result, error) {
	job, err := g.jobs.GetByID(ctx, receipt.TaskID)
	if err != nil {
		return Result{}, &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("load export job: %v", err)}
	}

	type manifestEntry struct {
		JobID    string `json:"job_id"`
		Location string `json:"location"`
		Kind     string `json:"kind"`
		Bundled  bool   `json:"bundled"`
	}
	var entries []zip.Entry
	var manifest []manifestEntry

	for _, sourceID := range job.Input.SourceJobIDs {
		source, err := g.jobs.GetByID(ctx, sourceID)
		if err != nil {
			return Result{}, &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("source job %s: %v", sourceID, err)}
		}
		if source.TenantID != job.TenantID {
			return Result{}, &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("source job %s belongs to another tenant", sourceID)}
		}
		if source.Status != domain.JobStatusCompleted {
			return Result{}, &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("source job %s is not completed", sourceID)}
		}
		for _, artifact := range source.Output {
			bundled := false
			// Remote locations stay as references in the manifest; only
			// locally stored artifacts are embedded.
			if !strings.HasPrefix(artifact.Location, "http://") && !strings.HasPrefix(artifact.Location, "https://") {
				if data, err := g.store.Read(ctx, artifact.Location); err == nil {
					entries = append(entries, zip.Entry{
						Filename: path.Join(sourceID, path.Base(artifact.Location)),
						Data:     data,
					})
					bundled = true
				}
			}
			manifest = append(manifest, manifestEntry{
				JobID:    sourceID,
				Location: artifact.Location,
				Kind:     string(artifact.Kind),
				Bundled:  bundled,
			})
		}
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Result{}, &Error{Kind: KindUpstreamInternal, Message: fmt.Sprintf("encode manifest: %v", err)}
	}
	entries = append(entries, zip.Entry{Filename: "manifest.json", Data: manifestJSON})

	archive := zip.Archive(entries)
	if archive == nil {
		return Result{}, &Error{Kind: KindUpstreamInternal, Message: "archive build failed"}
	}
	key, err := g.store.Write(ctx, fmt.Sprintf("exports/%s/export.zip", job.ID), archive)
	if err != nil {
		return Result{}, &Error{Kind: KindUpstreamInternal, Message: fmt.Sprintf("persist archive: %v", err)}
	}

	return Result{Artifacts: []domain.Artifact{{
		Kind:     domain.ArtifactExport,
		Location: key,
		MIME:     "application/zip",
		Provider: "export",
	}}}, nil
}

var _ Gateway = (*ExportGateway)(nil)
