package provider

import (
	"context"

	"github.com/davidferlay/octatrack-manager/internal/model"
)

// SystemResources describes what the parser backend knows about the host
// machine. RecommendedConcurrency drives the loader's batch sizing; it is a
// collaborator value, never computed locally.
type SystemResources struct {
	CPUCores          int `json:"cpu_cores"`
	AvailableMemoryMB int `json:"available_memory_mb"`
	RecommendedConcurrency int `json:"recommended_concurrency"`
}

// Provider is the contract the loader and cache validator consume to read
// project data. The canonical implementation shells out to the external
// octatool binary; tests substitute fakes.
type Provider interface {
	// LoadProjectMetadata parses the project descriptor. An error here is
	// fatal for a load session.
	LoadProjectMetadata(ctx context.Context, path string) (*model.ProjectMetadata, error)

	// ExistingBanks returns the ascending indices of bank files present on
	// disk for the project.
	ExistingBanks(ctx context.Context, path string) ([]model.BankIndex, error)

	// LoadBank parses a single bank file. A (nil, nil) return means the
	// bank file does not exist, which is not an error.
	LoadBank(ctx context.Context, path string, index model.BankIndex) (*model.Bank, error)

	// SystemResources queries the backend's resource recommendation.
	SystemResources(ctx context.Context) (SystemResources, error)

	// FileTimestamps returns the current on-disk mtimes of the project
	// descriptor and all 16 bank files.
	FileTimestamps(ctx context.Context, path string) (model.FileTimestamps, error)
}
