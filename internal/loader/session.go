package loader

import (
	"sort"

	"github.com/davidferlay/octatrack-manager/internal/model"
)

// session is the mutable state of one load run. It is only ever touched
// under the loader's mutex, through apply.
type session struct {
	id        int64
	path      string
	metadata  *model.ProjectMetadata
	banks     map[model.BankIndex]*model.Bank
	loaded    map[model.BankIndex]bool
	failed    map[model.BankIndex]string
	allLoaded bool
}

func newSession(id int64, path string) *session {
	return &session{
		id:     id,
		path:   path,
		banks:  make(map[model.BankIndex]*model.Bank),
		loaded: make(map[model.BankIndex]bool),
		failed: make(map[model.BankIndex]string),
	}
}

// bankResult is one completion from a bank fetch (or a vacuous completion
// for a bank that does not exist on disk). It carries the session identity
// so stale completions can be rejected.
type bankResult struct {
	sessionID int64
	bank      model.BankIndex
	payload   *model.Bank // nil when vacuous or failed
	errMsg    string      // non-empty when the fetch failed
}

// reduce folds one result into the session state. Every attempted index
// lands in loaded so nothing lingers in a perpetual "loading" state; failed
// fetches are additionally recorded with their message. loaded and the keys
// of failed stay disjoint in the "cleanly loaded" sense tracked by banks.
func (s *session) reduce(res bankResult) {
	s.loaded[res.bank] = true
	if res.errMsg != "" {
		s.failed[res.bank] = res.errMsg
		return
	}
	delete(s.failed, res.bank)
	if res.payload != nil {
		s.banks[res.bank] = res.payload
		return
	}
	// A nil payload means no file on disk; drop any stale copy from an
	// earlier fetch.
	delete(s.banks, res.bank)
}

// Snapshot is a read-only copy of a session's state. Consumers get fresh
// copies of all collections and may not observe later mutations.
type Snapshot struct {
	SessionID int64
	Path      string
	Metadata  *model.ProjectMetadata
	Banks     map[model.BankIndex]*model.Bank
	Loaded    []model.BankIndex // ascending
	Failed    map[model.BankIndex]string
	AllLoaded bool
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		Path:      s.path,
		Metadata:  s.metadata,
		Banks:     make(map[model.BankIndex]*model.Bank, len(s.banks)),
		Failed:    make(map[model.BankIndex]string, len(s.failed)),
		AllLoaded: s.allLoaded,
	}
	for idx, bank := range s.banks {
		snap.Banks[idx] = bank
	}
	for idx, msg := range s.failed {
		snap.Failed[idx] = msg
	}
	for idx := range s.loaded {
		snap.Loaded = append(snap.Loaded, idx)
	}
	sort.Slice(snap.Loaded, func(i, j int) bool { return snap.Loaded[i] < snap.Loaded[j] })
	return snap
}

// FailedLetters returns the letters of failed banks in display order,
// e.g. ["H"] for a failure on index 7.
func (s Snapshot) FailedLetters() []string {
	indices := make([]model.BankIndex, 0, len(s.Failed))
	for idx := range s.Failed {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	letters := make([]string, len(indices))
	for i, idx := range indices {
		letters[i] = idx.Letter()
	}
	return letters
}
