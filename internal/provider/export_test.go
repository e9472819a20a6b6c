package provider

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hadiwinata/mediaforge/internal/adapter/repo"
	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/storage"
)

func TestExportGatewayBundlesLocalArtifacts(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Write(ctx, "generated/images/src-1/image-01.png", []byte("png-bytes")); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	jobs := repo.NewMemoryJobs()
	now := time.Now().UTC()
	source := &domain.Job{
		ID:       "src-1",
		TenantID: "t1",
		Module:   domain.ModuleTextToImage,
		Status:   domain.JobStatusCompleted,
		Output: []domain.Artifact{
			{Kind: domain.ArtifactImage, Location: "generated/images/src-1/image-01.png"},
			{Kind: domain.ArtifactImage, Location: "https://cdn.example.com/src-1/image-02.png"},
		},
		QueuedAt: now,
	}
	exportJob := &domain.Job{
		ID:       "exp-1",
		TenantID: "t1",
		Module:   domain.ModuleExport,
		Status:   domain.JobStatusProcessing,
		Input:    domain.JobInput{SourceJobIDs: []string{"src-1"}},
		QueuedAt: now,
	}
	for _, j := range []*domain.Job{source, exportJob} {
		if err := jobs.Create(ctx, j); err != nil {
			t.Fatalf("create %s: %v", j.ID, err)
		}
	}

	gw := NewExportGateway(jobs, store)
	receipt, err := gw.Dispatch(ctx, exportJob)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	result, err := gw.Await(ctx, receipt)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if len(result.Artifacts) != 1 || result.Artifacts[0].Kind != domain.ArtifactExport {
		t.Fatalf("unexpected result: %+v", result.Artifacts)
	}

	data, err := store.Read(ctx, result.Artifacts[0].Location)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["manifest.json"] {
		t.Fatalf("manifest.json missing, files: %v", names)
	}
	if !names["src-1/image-01.png"] {
		t.Fatalf("local artifact missing, files: %v", names)
	}
	// Remote artifacts appear in the manifest only.
	if len(zr.File) != 2 {
		t.Fatalf("archive files: got %d want 2", len(zr.File))
	}
}

func TestExportGatewayRejectsCrossTenantSources(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	jobs := repo.NewMemoryJobs()
	now := time.Now().UTC()
	if err := jobs.Create(ctx, &domain.Job{
		ID: "src-1", TenantID: "other", Status: domain.JobStatusCompleted, QueuedAt: now,
	}); err != nil {
		t.Fatalf("create source: %v", err)
	}
	exportJob := &domain.Job{
		ID: "exp-1", TenantID: "t1", Module: domain.ModuleExport,
		Status: domain.JobStatusProcessing,
		Input:  domain.JobInput{SourceJobIDs: []string{"src-1"}},
		QueuedAt: now,
	}
	if err := jobs.Create(ctx, exportJob); err != nil {
		t.Fatalf("create export: %v", err)
	}

	gw := NewExportGateway(jobs, store)
	receipt, err := gw.Dispatch(ctx, exportJob)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	_, err = gw.Await(ctx, receipt)
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindInvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestExportGatewayRequiresSources(t *testing.T) {
	gw := NewExportGateway(repo.NewMemoryJobs(), nil)
	_, err := gw.Dispatch(context.Background(), &domain.Job{ID: "exp-1", Module: domain.ModuleExport})
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindInvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}
