package loader

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/davidferlay/octatrack-manager/internal/cache"
	"github.com/davidferlay/octatrack-manager/internal/model"
	"github.com/davidferlay/octatrack-manager/internal/provider"
	"golang.org/x/sync/errgroup"
)

// EventLevel indicates the severity/type of a load event.
type EventLevel int

const (
	LevelInfo EventLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// Stage identifies which phase of the load emitted an event.
type Stage string

const (
	StageCache    Stage = "cache"
	StageMetadata Stage = "metadata"
	StageBanks    Stage = "banks"
	StageDone     Stage = "done"
)

// Event is a progress update from a load session.
type Event struct {
	SessionID int64
	Stage     Stage
	Bank      model.BankIndex // -1 when not bank-specific
	Level     EventLevel
	Message   string
}

// ErrSuperseded is returned by Load when a newer session replaced this one
// mid-run. The superseded run's in-flight fetches were allowed to finish
// but their results were discarded.
var ErrSuperseded = errors.New("loader: session superseded")

// Options tunes a Loader.
type Options struct {
	// MinBatch/MaxBatch bound the concurrency batch size the provider's
	// recommendation is clamped into. Defaults: 2 and 4.
	MinBatch int
	MaxBatch int

	// OnEvent receives progress events. May be nil.
	OnEvent func(Event)
}

// Loader populates an in-memory project view progressively: metadata first,
// then the active bank, then the rest in bounded concurrent batches, so the
// default view becomes interactive as early as possible regardless of
// project size.
//
// Only one session is current at a time. Starting a new Load supersedes the
// previous session; its in-flight fetches complete but their results are
// rejected by session-id comparison before touching shared state.
type Loader struct {
	provider provider.Provider
	cache    *cache.Store // nil disables caching
	onEvent  func(Event)
	minBatch int
	maxBatch int

	nextID  atomic.Int64
	mu      sync.Mutex
	current *session
}

// New creates a Loader. store may be nil to disable caching entirely.
func New(p provider.Provider, store *cache.Store, opts Options) *Loader {
	if opts.MinBatch <= 0 {
		opts.MinBatch = 2
	}
	if opts.MaxBatch < opts.MinBatch {
		opts.MaxBatch = 4
	}
	return &Loader{
		provider: p,
		cache:    store,
		onEvent:  opts.OnEvent,
		minBatch: opts.MinBatch,
		maxBatch: opts.MaxBatch,
	}
}

func (l *Loader) emit(ev Event) {
	if l.onEvent != nil {
		l.onEvent(ev)
	}
}

// Snapshot returns a read-only copy of the current session's state.
// The second return is false when no session has been started.
func (l *Loader) Snapshot() (Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return Snapshot{}, false
	}
	return l.current.snapshot(), true
}

// Load opens a project, serving it from the cache when the on-disk files
// are unchanged and running the full progressive fetch otherwise.
func (l *Loader) Load(ctx context.Context, path string) (Snapshot, error) {
	return l.load(ctx, path, true)
}

// Refresh re-runs the full progressive fetch, ignoring any cached state.
func (l *Loader) Refresh(ctx context.Context, path string) (Snapshot, error) {
	return l.load(ctx, path, false)
}

func (l *Loader) load(ctx context.Context, path string, useCache bool) (Snapshot, error) {
	// INIT: a new session supersedes the previous one; pending completions
	// of the old session fail the id comparison from here on.
	id := l.nextID.Add(1)
	s := newSession(id, path)
	l.mu.Lock()
	l.current = s
	l.mu.Unlock()

	if useCache && l.cache != nil {
		if snap, ok := l.serveFromCache(ctx, s); ok {
			return snap, nil
		}
	}

	// METADATA: fatal on failure, no bank is ever fetched without it.
	meta, err := l.provider.LoadProjectMetadata(ctx, path)
	if err != nil {
		l.emit(Event{SessionID: id, Stage: StageMetadata, Bank: -1, Level: LevelError,
			Message: fmt.Sprintf("Failed to read project: %v", err)})
		return Snapshot{}, fmt.Errorf("loading project metadata for %s: %w", path, err)
	}
	l.withSession(id, func(s *session) { s.metadata = meta })
	l.emit(Event{SessionID: id, Stage: StageMetadata, Bank: -1, Level: LevelInfo,
		Message: fmt.Sprintf("Project open: %.1f BPM, OS %s", meta.Tempo, meta.OSVersion)})

	// ENUMERATE: also fatal. Banks with no file on disk complete vacuously,
	// with no further backend call for those indices.
	existing, err := l.provider.ExistingBanks(ctx, path)
	if err != nil {
		l.emit(Event{SessionID: id, Stage: StageBanks, Bank: -1, Level: LevelError,
			Message: fmt.Sprintf("Failed to enumerate banks: %v", err)})
		return Snapshot{}, fmt.Errorf("enumerating banks for %s: %w", path, err)
	}

	existSet := make(map[model.BankIndex]bool, len(existing))
	for _, idx := range existing {
		existSet[idx] = true
	}
	for idx := model.BankIndex(0); idx < model.NumBanks; idx++ {
		if !existSet[idx] {
			l.apply(bankResult{sessionID: id, bank: idx})
		}
	}

	// PRIORITY FETCH: the active bank alone, awaited, so the hardware's
	// last selection becomes interactive first.
	active := meta.CurrentState.Bank
	if existSet[active] {
		l.fetchBank(ctx, id, path, active)
	}

	// BATCHED FETCH: remaining banks ascending, in fixed-size batches.
	remaining := make([]model.BankIndex, 0, len(existing))
	for _, idx := range existing {
		if idx != active {
			remaining = append(remaining, idx)
		}
	}

	batchSize := l.batchSize(ctx)
	for start := 0; start < len(remaining); start += batchSize {
		end := min(start+batchSize, len(remaining))

		g, gctx := errgroup.WithContext(ctx)
		for _, idx := range remaining[start:end] {
			g.Go(func() error {
				l.fetchBank(gctx, id, path, idx)
				return nil // per-bank failures never abort the batch
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		if l.superseded(id) {
			return Snapshot{}, ErrSuperseded
		}
		l.emit(Event{SessionID: id, Stage: StageBanks, Bank: -1, Level: LevelVerbose,
			Message: fmt.Sprintf("Loaded %d/%d banks", end, len(remaining))})
		// Cooperative yield between batches; consumers polling Snapshot get
		// a chance to render before the next batch is issued.
		runtime.Gosched()
	}

	// TERMINAL
	done := l.withSession(id, func(s *session) { s.allLoaded = true })
	if !done {
		return Snapshot{}, ErrSuperseded
	}

	snap, _ := l.Snapshot()
	if len(snap.Failed) > 0 {
		l.emit(Event{SessionID: id, Stage: StageDone, Bank: -1, Level: LevelWarning,
			Message: fmt.Sprintf("Project loaded, banks failed: %v", snap.FailedLetters())})
	} else {
		l.emit(Event{SessionID: id, Stage: StageDone, Bank: -1, Level: LevelSuccess,
			Message: "Project loaded"})
	}

	l.primeCache(ctx, snap)
	return snap, nil
}

// serveFromCache populates the session from the cache when the stored
// timestamps still match the card. Returns false on any miss or staleness,
// in which case the caller proceeds with a full load.
func (l *Loader) serveFromCache(ctx context.Context, s *session) (Snapshot, bool) {
	current, err := l.provider.FileTimestamps(ctx, s.path)
	if err != nil {
		l.emit(Event{SessionID: s.id, Stage: StageCache, Bank: -1, Level: LevelVerbose,
			Message: fmt.Sprintf("Timestamp check unavailable: %v", err)})
		return Snapshot{}, false
	}
	if !l.cache.IsValid(ctx, s.path, current) {
		return Snapshot{}, false
	}

	meta := l.cache.GetMetadata(ctx, s.path)
	if meta == nil {
		return Snapshot{}, false
	}
	banks := l.cache.GetBanks(ctx, s.path)

	done := l.withSession(s.id, func(s *session) {
		s.metadata = meta
		for _, bank := range banks {
			s.banks[bank.Index] = bank
		}
		// The card is unchanged since this snapshot was taken, so the
		// cached picture is complete: everything counts as loaded.
		for idx := model.BankIndex(0); idx < model.NumBanks; idx++ {
			s.loaded[idx] = true
		}
		s.allLoaded = true
	})
	if !done {
		return Snapshot{}, false
	}

	l.emit(Event{SessionID: s.id, Stage: StageCache, Bank: -1, Level: LevelSuccess,
		Message: fmt.Sprintf("Project restored from cache (%d banks)", len(banks))})
	snap, _ := l.Snapshot()
	return snap, true
}

// fetchBank loads one bank and folds the result into the session. A nil
// bank without error means the file vanished between enumeration and fetch,
// which completes the index vacuously.
func (l *Loader) fetchBank(ctx context.Context, id int64, path string, idx model.BankIndex) {
	bank, err := l.provider.LoadBank(ctx, path, idx)
	if err != nil {
		l.apply(bankResult{sessionID: id, bank: idx, errMsg: err.Error()})
		l.emit(Event{SessionID: id, Stage: StageBanks, Bank: idx, Level: LevelWarning,
			Message: fmt.Sprintf("Bank %s failed: %v", idx.Letter(), err)})
		return
	}
	l.apply(bankResult{sessionID: id, bank: idx, payload: bank})
	if bank != nil {
		l.emit(Event{SessionID: id, Stage: StageBanks, Bank: idx, Level: LevelVerbose,
			Message: fmt.Sprintf("Bank %s loaded", idx.Letter())})
	}
}

// batchSize clamps the provider's recommendation into the configured
// bounds. A failed resource query falls back to the minimum.
func (l *Loader) batchSize(ctx context.Context) int {
	res, err := l.provider.SystemResources(ctx)
	if err != nil {
		return l.minBatch
	}
	size := res.RecommendedConcurrency
	if size < l.minBatch {
		size = l.minBatch
	}
	if size > l.maxBatch {
		size = l.maxBatch
	}
	return size
}

// apply folds a bank result into the current session, rejecting it when the
// result's session has been superseded. Reports whether it was applied.
func (l *Loader) apply(res bankResult) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil || l.current.id != res.sessionID {
		return false // stale completion from a superseded session
	}
	l.current.reduce(res)
	return true
}

// withSession runs fn on the current session iff it still has the given id.
func (l *Loader) withSession(id int64, fn func(*session)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil || l.current.id != id {
		return false
	}
	fn(l.current)
	return true
}

func (l *Loader) superseded(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current == nil || l.current.id != id
}

// primeCache stores the freshly loaded project. Failed banks are not
// cached; a fresh timestamps snapshot is taken so the next open can
// validate against the card.
func (l *Loader) primeCache(ctx context.Context, snap Snapshot) {
	if l.cache == nil || snap.Metadata == nil {
		return
	}
	var ts *model.FileTimestamps
	if current, err := l.provider.FileTimestamps(ctx, snap.Path); err == nil {
		ts = &current
	}
	l.cache.PutProject(ctx, snap.Path, snap.Metadata, snap.Banks, ts)
}

// ReloadBank refreshes a single bank of the current session in place,
// leaving every other index untouched. Used after an external mutation,
// e.g. a copy/move targeting this project from another view.
func (l *Loader) ReloadBank(ctx context.Context, path string, idx model.BankIndex) error {
	l.mu.Lock()
	var id int64 = -1
	if l.current != nil && l.current.path == path {
		id = l.current.id
	}
	l.mu.Unlock()
	if id < 0 {
		return fmt.Errorf("loader: no session for %s", path)
	}

	bank, err := l.provider.LoadBank(ctx, path, idx)
	if err != nil {
		l.apply(bankResult{sessionID: id, bank: idx, errMsg: err.Error()})
		return fmt.Errorf("reloading bank %s: %w", idx.Letter(), err)
	}
	if !l.apply(bankResult{sessionID: id, bank: idx, payload: bank}) {
		return ErrSuperseded
	}

	if l.cache != nil && bank != nil {
		var mtime int64
		if ts, err := l.provider.FileTimestamps(ctx, path); err == nil {
			mtime = ts.BankFiles[idx]
		}
		l.cache.PutBank(ctx, path, idx, bank, mtime)
	}
	return nil
}
