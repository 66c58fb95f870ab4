package cache

import (
	"context"

	"github.com/davidferlay/octatrack-manager/internal/model"
)

// Fresh reports whether a stored timestamps snapshot still matches the
// current on-disk state. A nil stored snapshot (entry predates timestamp
// tracking, or the project was never cached) is unconditionally stale.
//
// All 17 timestamps must match exactly: the project descriptor mtime and
// each of the 16 bank-file mtimes, with an absent bank represented as 0 on
// both sides. Any mismatch invalidates the whole project, even though bank
// rows carry their own mtime; per-bank revalidation is deliberately not
// attempted (see DESIGN.md).
func Fresh(stored *model.FileTimestamps, current model.FileTimestamps) bool {
	if stored == nil {
		return false
	}
	return stored.Equal(current)
}

// IsValid reports whether the cached snapshot for path can be served
// instead of re-reading the card. Current timestamps come from the
// provider; stored ones from the metadata entry.
func (s *Store) IsValid(ctx context.Context, path string, current model.FileTimestamps) bool {
	meta, stored := s.GetMetadataWithTimestamps(ctx, path)
	if meta == nil {
		return false
	}
	return Fresh(stored, current)
}
