package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hadiwinata/mediaforge/internal/adapter/repo"
	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/infra"
	"github.com/hadiwinata/mediaforge/internal/storage"
)

func TestBuildGatewaysCampaignWizardEmitsScripts(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	// No vendor key: every generation module gets a synthetic gateway.
	gateways := buildGateways(&infra.Config{}, repo.NewMemoryJobs(), store, zerolog.Nop())

	gw, ok := gateways[domain.ModuleCampaignWizard]
	if !ok {
		t.Fatal("campaign_wizard gateway missing")
	}

	ctx := context.Background()
	job := &domain.Job{
		ID:       "job-1",
		TenantID: "t1",
		Module:   domain.ModuleCampaignWizard,
		Input:    domain.JobInput{Prompt: "launch teaser", Steps: []string{"hook", "demo", "cta"}},
	}
	receipt, err := gw.Dispatch(ctx, job)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	result, err := gw.Await(ctx, receipt)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if len(result.Artifacts) != 3 {
		t.Fatalf("artifacts: got %d want one per step", len(result.Artifacts))
	}
	for i, artifact := range result.Artifacts {
		if artifact.Kind != domain.ArtifactScript {
			t.Fatalf("artifact %d kind = %q, want %q", i, artifact.Kind, domain.ArtifactScript)
		}
	}
}

func TestBuildGatewaysExportAlwaysLocal(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	gateways := buildGateways(&infra.Config{}, repo.NewMemoryJobs(), store, zerolog.Nop())
	if _, ok := gateways[domain.ModuleExport]; !ok {
		t.Fatal("export gateway missing")
	}
	for _, module := range domain.KnownModules {
		if _, ok := gateways[module]; !ok {
			t.Fatalf("module %s has no gateway", module)
		}
	}
}
