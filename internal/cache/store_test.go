package cache

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davidferlay/octatrack-manager/internal/model"
)

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// Deterministic, strictly increasing capture timestamps.
	var tick int64
	store.now = func() time.Time {
		tick++
		return time.Unix(0, tick*int64(time.Millisecond))
	}
	return store
}

func testMetadata(tempo float64) *model.ProjectMetadata {
	return &model.ProjectMetadata{
		Tempo:     tempo,
		OSVersion: "1.40A",
		CurrentState: model.CurrentState{
			Bank: 2,
		},
	}
}

// testBank pads the bank name so bank payloads dominate project size,
// which is also how real projects behave.
func testBank(index model.BankIndex, padding int) *model.Bank {
	return &model.Bank{
		Index: index,
		Name:  "BANK " + index.Letter() + strings.Repeat("x", padding),
	}
}

func TestStore_MetadataRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	if got := store.GetMetadata(ctx, "/card/SET1/PROJ"); got != nil {
		t.Fatalf("empty cache returned metadata: %+v", got)
	}

	ts := &model.FileTimestamps{ProjectFile: 100}
	ts.BankFiles[0] = 50
	store.PutMetadata(ctx, "/card/SET1/PROJ", testMetadata(128.5), ts)

	meta, gotTS := store.GetMetadataWithTimestamps(ctx, "/card/SET1/PROJ")
	if meta == nil {
		t.Fatal("metadata not cached")
	}
	if meta.Tempo != 128.5 {
		t.Errorf("Tempo = %v, want 128.5", meta.Tempo)
	}
	if gotTS == nil || !gotTS.Equal(*ts) {
		t.Errorf("timestamps = %+v, want %+v", gotTS, ts)
	}
}

func TestStore_MetadataWithoutTimestamps(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	store.PutMetadata(ctx, "/card/SET1/PROJ", testMetadata(120), nil)

	meta, ts := store.GetMetadataWithTimestamps(ctx, "/card/SET1/PROJ")
	if meta == nil {
		t.Fatal("metadata not cached")
	}
	if ts != nil {
		t.Errorf("expected nil timestamps, got %+v", ts)
	}
}

func TestStore_PutReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	store.PutMetadata(ctx, "/p", testMetadata(100), &model.FileTimestamps{ProjectFile: 1})
	store.PutMetadata(ctx, "/p", testMetadata(140), nil)

	meta, ts := store.GetMetadataWithTimestamps(ctx, "/p")
	if meta.Tempo != 140 {
		t.Errorf("Tempo = %v, want 140 (replaced)", meta.Tempo)
	}
	// The replacement stored no timestamps; the old snapshot must not leak
	// through.
	if ts != nil {
		t.Errorf("timestamps = %+v, want nil after replacement", ts)
	}
}

func TestStore_BankRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	if got := store.GetBank(ctx, "/p", 3); got != nil {
		t.Fatalf("empty cache returned bank: %+v", got)
	}

	store.PutBank(ctx, "/p", 3, testBank(3, 0), 1234)

	bank := store.GetBank(ctx, "/p", 3)
	if bank == nil {
		t.Fatal("bank not cached")
	}
	if bank.Index != 3 || bank.Name != "BANK D" {
		t.Errorf("bank = %+v", bank)
	}

	// Same index under a different path is a different key.
	if got := store.GetBank(ctx, "/other", 3); got != nil {
		t.Errorf("cross-path read returned bank: %+v", got)
	}
}

func TestStore_GetBanksOrdered(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	for _, idx := range []model.BankIndex{9, 0, 15, 4} {
		store.PutBank(ctx, "/p", idx, testBank(idx, 0), 0)
	}

	banks := store.GetBanks(ctx, "/p")
	if len(banks) != 4 {
		t.Fatalf("got %d banks, want 4", len(banks))
	}
	want := []model.BankIndex{0, 4, 9, 15}
	for i, bank := range banks {
		if bank.Index != want[i] {
			t.Errorf("banks[%d].Index = %d, want %d", i, bank.Index, want[i])
		}
	}
}

func TestStore_PutProjectAndClear(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	ts := &model.FileTimestamps{ProjectFile: 10}
	ts.BankFiles[0] = 11
	ts.BankFiles[2] = 12
	banks := map[model.BankIndex]*model.Bank{
		0: testBank(0, 0),
		2: testBank(2, 0),
	}
	store.PutProject(ctx, "/p1", testMetadata(120), banks, ts)
	store.PutProject(ctx, "/p2", testMetadata(90), nil, nil)

	if got := len(store.GetBanks(ctx, "/p1")); got != 2 {
		t.Errorf("p1 banks = %d, want 2", got)
	}

	stats := store.Stats(ctx)
	if stats.ProjectCount != 2 || stats.BankCount != 2 {
		t.Errorf("stats = %+v, want 2 projects / 2 banks", stats)
	}
	if !stats.Newest.After(stats.Oldest) {
		t.Errorf("newest %v should be after oldest %v", stats.Newest, stats.Oldest)
	}

	store.ClearProject(ctx, "/p1")
	if store.GetMetadata(ctx, "/p1") != nil || len(store.GetBanks(ctx, "/p1")) != 0 {
		t.Error("p1 should be gone after ClearProject")
	}
	if store.GetMetadata(ctx, "/p2") == nil {
		t.Error("p2 should survive ClearProject(/p1)")
	}

	store.Clear(ctx)
	if stats := store.Stats(ctx); stats.ProjectCount != 0 || stats.BankCount != 0 {
		t.Errorf("stats after Clear = %+v, want empty", stats)
	}
}

func TestStore_AllPathsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	for i := 1; i <= 3; i++ {
		store.PutMetadata(ctx, fmt.Sprintf("/p%d", i), testMetadata(100), nil)
	}

	paths := store.AllPaths(ctx)
	want := []string{"/p3", "/p2", "/p1"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

// measureProjectBytes returns the stored payload size of one reference
// project, so quota tests can size budgets without hardcoding JSON lengths.
func measureProjectBytes(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()
	store := openTestStore(t, Options{})
	store.PutProject(ctx, "/measure", testMetadata(120),
		map[model.BankIndex]*model.Bank{0: testBank(0, 4096)}, nil)
	size := store.Stats(ctx).StoredBytes
	if size <= 0 {
		t.Fatal("reference project stored no bytes")
	}
	return size
}

func putQuotaProject(ctx context.Context, store *Store, i int) {
	store.PutProject(ctx, fmt.Sprintf("/p%d", i), testMetadata(120),
		map[model.BankIndex]*model.Bank{0: testBank(0, 4096)}, nil)
}

func TestStore_QuotaEvictionKeepsFiveMostRecent(t *testing.T) {
	ctx := context.Background()
	perProject := measureProjectBytes(t)

	// Six projects fit; the seventh's bank write trips the quota.
	store := openTestStore(t, Options{QuotaBytes: 6*perProject + perProject/2, KeepRecent: 5})

	for i := 1; i <= 7; i++ {
		putQuotaProject(ctx, store, i)
	}

	paths := store.AllPaths(ctx)
	want := []string{"/p7", "/p6", "/p5", "/p4", "/p3"}
	if len(paths) != len(want) {
		t.Fatalf("surviving paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}

	// The 7th write must have fully succeeded on retry.
	if store.GetMetadata(ctx, "/p7") == nil || len(store.GetBanks(ctx, "/p7")) != 1 {
		t.Error("7th project incomplete after retry")
	}
}

func TestStore_QuotaEvictionRemovesSingleOldest(t *testing.T) {
	ctx := context.Background()
	perProject := measureProjectBytes(t)

	// Five projects fit; the sixth's bank write trips the quota, at which
	// point the sixth's metadata row already ranks newest, so eviction
	// drops exactly the oldest prior project.
	store := openTestStore(t, Options{QuotaBytes: 5*perProject + perProject/2, KeepRecent: 5})

	for i := 1; i <= 6; i++ {
		putQuotaProject(ctx, store, i)
	}

	if store.GetMetadata(ctx, "/p1") != nil {
		t.Error("oldest project /p1 should be evicted")
	}
	for i := 2; i <= 6; i++ {
		path := fmt.Sprintf("/p%d", i)
		if store.GetMetadata(ctx, path) == nil {
			t.Errorf("%s should survive eviction", path)
		}
	}
	if len(store.GetBanks(ctx, "/p6")) != 1 {
		t.Error("6th project's bank missing after retry")
	}
}

func TestStore_LegacyLayoutDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	// Fabricate a v1 database: one table per project holding everything.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE projects (path TEXT PRIMARY KEY, blob BLOB)`,
		`INSERT INTO projects VALUES ('/old', x'00')`,
		`PRAGMA user_version = 1`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seeding legacy db: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("closing legacy db: %v", err)
	}

	store, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open over legacy layout: %v", err)
	}
	defer store.Close()

	var count int
	err = store.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'projects'`,
	).Scan(&count)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	if count != 0 {
		t.Error("legacy projects table should be dropped")
	}

	var version int
	if err := store.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != schemaVersion {
		t.Errorf("user_version = %d, want %d", version, schemaVersion)
	}

	// Old rows are gone; first read after upgrade is a cold miss.
	if store.GetMetadata(context.Background(), "/old") != nil {
		t.Error("legacy row must not survive migration")
	}
}

func TestStore_ReopenSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	store, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.PutMetadata(ctx, "/p", testMetadata(133), nil)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	meta := reopened.GetMetadata(ctx, "/p")
	if meta == nil || meta.Tempo != 133 {
		t.Errorf("metadata after reopen = %+v", meta)
	}
}
