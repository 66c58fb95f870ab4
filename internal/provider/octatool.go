package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/davidferlay/octatrack-manager/internal/model"
	"github.com/jmgilman/go/exec"
)

// Runner executes one octatool invocation and captures its output.
// *exec.CommandWrapper satisfies it.
type Runner interface {
	Run(args ...string) (*exec.Result, error)
}

// Octatool implements Provider by invoking the external octatool binary,
// one subprocess per call, decoding JSON from its stdout.
//
// octatool owns the binary project-file format; this module never parses
// card files itself. Subcommands used:
//
//	octatool project-meta <path>        → ProjectMetadata JSON
//	octatool list-banks <path>          → array of bank indices
//	octatool bank <path> <index>        → Bank JSON, or "null" if absent
//	octatool resources                  → SystemResources JSON
//	octatool mtimes <path>              → FileTimestamps JSON
//
// A fresh executor is built for every invocation, so concurrent calls never
// share command state.
type Octatool struct {
	newRunner func(ctx context.Context) Runner
}

// NewOctatool creates a provider that runs the binary at binPath.
// timeout is a Go duration string applied per call; empty disables it.
func NewOctatool(binPath, timeout string) *Octatool {
	return &Octatool{
		newRunner: func(ctx context.Context) Runner {
			opts := []exec.Option{
				exec.WithInheritEnv(),
				exec.WithDisableColors(),
				exec.WithContext(ctx),
			}
			if timeout != "" {
				opts = append(opts, exec.WithTimeout(timeout))
			}
			return exec.NewWrapper(exec.New(opts...), binPath)
		},
	}
}

// NewOctatoolWithRunner creates a provider whose invocations are served by
// runners from newRunner. Used by tests.
func NewOctatoolWithRunner(newRunner func(ctx context.Context) Runner) *Octatool {
	return &Octatool{newRunner: newRunner}
}

func (o *Octatool) run(ctx context.Context, out any, args ...string) error {
	result, err := o.newRunner(ctx).Run(args...)
	if err != nil {
		if result != nil && strings.TrimSpace(result.Stderr) != "" {
			return fmt.Errorf("octatool %s: %s", args[0], strings.TrimSpace(result.Stderr))
		}
		return fmt.Errorf("octatool %s: %w", args[0], err)
	}

	if err := json.Unmarshal([]byte(result.Stdout), out); err != nil {
		return fmt.Errorf("octatool %s: decoding output: %w", args[0], err)
	}
	return nil
}

// LoadProjectMetadata implements Provider.
func (o *Octatool) LoadProjectMetadata(ctx context.Context, path string) (*model.ProjectMetadata, error) {
	var meta model.ProjectMetadata
	if err := o.run(ctx, &meta, "project-meta", path); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ExistingBanks implements Provider.
func (o *Octatool) ExistingBanks(ctx context.Context, path string) ([]model.BankIndex, error) {
	var indices []model.BankIndex
	if err := o.run(ctx, &indices, "list-banks", path); err != nil {
		return nil, err
	}
	for _, idx := range indices {
		if !idx.Valid() {
			return nil, fmt.Errorf("octatool list-banks: index %d out of range", idx)
		}
	}
	return indices, nil
}

// LoadBank implements Provider. A "null" payload from octatool means the
// bank file is absent and yields (nil, nil).
func (o *Octatool) LoadBank(ctx context.Context, path string, index model.BankIndex) (*model.Bank, error) {
	var bank *model.Bank
	if err := o.run(ctx, &bank, "bank", path, fmt.Sprintf("%d", index)); err != nil {
		return nil, err
	}
	return bank, nil
}

// SystemResources implements Provider.
func (o *Octatool) SystemResources(ctx context.Context) (SystemResources, error) {
	var res SystemResources
	if err := o.run(ctx, &res, "resources"); err != nil {
		return SystemResources{}, err
	}
	return res, nil
}

// FileTimestamps implements Provider.
func (o *Octatool) FileTimestamps(ctx context.Context, path string) (model.FileTimestamps, error) {
	var ts model.FileTimestamps
	if err := o.run(ctx, &ts, "mtimes", path); err != nil {
		return model.FileTimestamps{}, err
	}
	return ts, nil
}
