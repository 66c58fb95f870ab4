package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/davidferlay/octatrack-manager/internal/model"
	"github.com/jmgilman/go/exec"
)

// scriptedRunner returns canned results keyed by the first Run argument.
type scriptedRunner struct {
	results map[string]*exec.Result
	errs    map[string]error
	calls   [][]string
}

func (s *scriptedRunner) Run(args ...string) (*exec.Result, error) {
	s.calls = append(s.calls, args)
	if err, ok := s.errs[args[0]]; ok {
		return s.results[args[0]], err
	}
	if res, ok := s.results[args[0]]; ok {
		return res, nil
	}
	return nil, errors.New("unexpected command: " + args[0])
}

func scriptedProvider(fake *scriptedRunner) *Octatool {
	return NewOctatoolWithRunner(func(ctx context.Context) Runner { return fake })
}

// runnerFunc adapts a function to the Runner interface.
type runnerFunc func(args ...string) (*exec.Result, error)

func (f runnerFunc) Run(args ...string) (*exec.Result, error) { return f(args...) }

func TestOctatool_LoadProjectMetadata(t *testing.T) {
	fake := &scriptedRunner{results: map[string]*exec.Result{
		"project-meta": {Stdout: `{"tempo": 128.5, "os_version": "1.40A", "current_state": {"bank": 2}}`},
	}}
	p := scriptedProvider(fake)

	meta, err := p.LoadProjectMetadata(context.Background(), "/card/SET1/PROJ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Tempo != 128.5 {
		t.Errorf("Tempo = %v, want 128.5", meta.Tempo)
	}
	if meta.CurrentState.Bank != 2 {
		t.Errorf("CurrentState.Bank = %d, want 2", meta.CurrentState.Bank)
	}

	wantArgs := []string{"project-meta", "/card/SET1/PROJ"}
	if len(fake.calls) != 1 || len(fake.calls[0]) != len(wantArgs) {
		t.Fatalf("calls = %v, want one %v", fake.calls, wantArgs)
	}
	for i, a := range wantArgs {
		if fake.calls[0][i] != a {
			t.Errorf("call arg[%d] = %q, want %q", i, fake.calls[0][i], a)
		}
	}
}

func TestOctatool_ExistingBanks(t *testing.T) {
	t.Run("valid indices", func(t *testing.T) {
		fake := &scriptedRunner{results: map[string]*exec.Result{
			"list-banks": {Stdout: `[0, 2, 5]`},
		}}
		p := scriptedProvider(fake)

		banks, err := p.ExistingBanks(context.Background(), "/card/SET1/PROJ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []model.BankIndex{0, 2, 5}
		if len(banks) != len(want) {
			t.Fatalf("got %d banks, want %d", len(banks), len(want))
		}
		for i := range want {
			if banks[i] != want[i] {
				t.Errorf("banks[%d] = %d, want %d", i, banks[i], want[i])
			}
		}
	})

	t.Run("out of range index rejected", func(t *testing.T) {
		fake := &scriptedRunner{results: map[string]*exec.Result{
			"list-banks": {Stdout: `[0, 16]`},
		}}
		p := scriptedProvider(fake)

		if _, err := p.ExistingBanks(context.Background(), "/card/SET1/PROJ"); err == nil {
			t.Error("expected error for index 16")
		}
	})
}

func TestOctatool_LoadBank_Missing(t *testing.T) {
	fake := &scriptedRunner{results: map[string]*exec.Result{
		"bank": {Stdout: `null`},
	}}
	p := scriptedProvider(fake)

	bank, err := p.LoadBank(context.Background(), "/card/SET1/PROJ", 3)
	if err != nil {
		t.Fatalf("missing bank should not be an error, got: %v", err)
	}
	if bank != nil {
		t.Errorf("missing bank should be nil, got %+v", bank)
	}
}

func TestOctatool_LoadBank_Failure(t *testing.T) {
	fake := &scriptedRunner{
		results: map[string]*exec.Result{
			"bank": {Stderr: "CorruptBank: bank07.work written by newer firmware", ExitCode: 1},
		},
		errs: map[string]error{
			"bank": &exec.ExecError{Command: []string{"bank"}, ExitCode: 1},
		},
	}
	p := scriptedProvider(fake)

	_, err := p.LoadBank(context.Background(), "/card/SET1/PROJ", 7)
	if err == nil {
		t.Fatal("expected error")
	}
	// stderr content is what the loader surfaces to users
	if got := err.Error(); got != "octatool bank: CorruptBank: bank07.work written by newer firmware" {
		t.Errorf("error = %q", got)
	}
}

type ctxTag struct{}

func TestOctatool_ConcurrentCallsKeepTheirContext(t *testing.T) {
	// Each invocation gets its own runner built from the caller's context, so
	// concurrent calls must never observe another call's context or timeout.
	p := NewOctatoolWithRunner(func(ctx context.Context) Runner {
		tag, _ := ctx.Value(ctxTag{}).(string)
		return runnerFunc(func(args ...string) (*exec.Result, error) {
			want := "bank " + args[len(args)-1]
			if tag != want {
				return nil, fmt.Errorf("runner built with context %q serving %v", tag, args)
			}
			return &exec.Result{Stdout: "null"}, nil
		})
	})

	var wg sync.WaitGroup
	errs := make(chan error, model.NumBanks)
	for idx := model.BankIndex(0); idx < model.NumBanks; idx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.WithValue(context.Background(), ctxTag{}, fmt.Sprintf("bank %d", idx))
			if _, err := p.LoadBank(ctx, "/card/SET1/PROJ", idx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestOctatool_FileTimestamps_ShortArray(t *testing.T) {
	// Older octatool versions emit fewer than 16 bank entries; missing ones
	// decode as zero.
	fake := &scriptedRunner{results: map[string]*exec.Result{
		"mtimes": {Stdout: `{"project_file": 100, "bank_files": [10, 20]}`},
	}}
	p := scriptedProvider(fake)

	ts, err := p.FileTimestamps(context.Background(), "/card/SET1/PROJ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.ProjectFile != 100 || ts.BankFiles[0] != 10 || ts.BankFiles[1] != 20 {
		t.Errorf("decoded %+v", ts)
	}
	for i := 2; i < model.NumBanks; i++ {
		if ts.BankFiles[i] != 0 {
			t.Errorf("BankFiles[%d] = %d, want 0", i, ts.BankFiles[i])
		}
	}
}

func TestOctatool_SystemResources(t *testing.T) {
	fake := &scriptedRunner{results: map[string]*exec.Result{
		"resources": {Stdout: `{"cpu_cores": 8, "available_memory_mb": 4096, "recommended_concurrency": 3}`},
	}}
	p := scriptedProvider(fake)

	res, err := p.SystemResources(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RecommendedConcurrency != 3 {
		t.Errorf("RecommendedConcurrency = %d, want 3", res.RecommendedConcurrency)
	}
}
