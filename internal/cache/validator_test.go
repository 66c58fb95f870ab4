package cache

import (
	"context"
	"testing"

	"github.com/davidferlay/octatrack-manager/internal/model"
)

func fullTimestamps() model.FileTimestamps {
	ts := model.FileTimestamps{ProjectFile: 1000}
	for i := range ts.BankFiles {
		ts.BankFiles[i] = int64(2000 + i)
	}
	return ts
}

func TestFresh(t *testing.T) {
	base := fullTimestamps()

	t.Run("nil stored is stale", func(t *testing.T) {
		if Fresh(nil, base) {
			t.Error("nil stored snapshot must be stale")
		}
	})

	t.Run("exact match is fresh", func(t *testing.T) {
		stored := base
		if !Fresh(&stored, base) {
			t.Error("identical snapshots must be fresh")
		}
	})

	t.Run("project file mismatch is stale", func(t *testing.T) {
		stored := base
		stored.ProjectFile = 1005
		if Fresh(&stored, base) {
			t.Error("project_file mismatch must be stale")
		}
	})

	t.Run("any bank file mismatch is stale", func(t *testing.T) {
		for i := 0; i < model.NumBanks; i++ {
			stored := base
			stored.BankFiles[i]++
			if Fresh(&stored, base) {
				t.Errorf("bank_files[%d] mismatch must be stale", i)
			}
		}
	})

	t.Run("missing bank compared as zero", func(t *testing.T) {
		stored := base
		stored.BankFiles[7] = 0
		current := base
		current.BankFiles[7] = 0
		if !Fresh(&stored, current) {
			t.Error("bank absent on both sides must compare fresh")
		}

		current.BankFiles[7] = 5
		if Fresh(&stored, current) {
			t.Error("bank created since caching must be stale")
		}
	})
}

func TestStore_IsValid(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})
	current := fullTimestamps()

	t.Run("never cached", func(t *testing.T) {
		if store.IsValid(ctx, "/p", current) {
			t.Error("uncached project must be invalid")
		}
	})

	t.Run("cached without timestamps", func(t *testing.T) {
		store.PutMetadata(ctx, "/p", testMetadata(120), nil)
		if store.IsValid(ctx, "/p", current) {
			t.Error("entry without stored timestamps must be invalid")
		}
	})

	t.Run("cached with matching timestamps", func(t *testing.T) {
		stored := current
		store.PutMetadata(ctx, "/p", testMetadata(120), &stored)
		if !store.IsValid(ctx, "/p", current) {
			t.Error("matching timestamps must be valid")
		}
	})

	t.Run("card written since caching", func(t *testing.T) {
		stored := current
		stored.ProjectFile = 100
		store.PutMetadata(ctx, "/p", testMetadata(120), &stored)

		changed := stored
		changed.ProjectFile = 105
		if store.IsValid(ctx, "/p", changed) {
			t.Error("newer project_file on disk must invalidate")
		}
	})
}
