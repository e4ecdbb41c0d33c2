package query

import "github.com/example/title-ratings/services/catalog/internal/store"

// Merge unions local and synced by record id. When both carry an id the
// synced copy wins. Output order is not meaningful.
func Merge(local, synced []store.ContentRecord) []store.ContentRecord {
	idx := make(map[string]int, len(local)+len(synced))
	out := make([]store.ContentRecord, 0, len(local)+len(synced))
	for _, src := range [][]store.ContentRecord{local, synced} {
		for _, r := range src {
			if i, ok := idx[r.ID]; ok {
				out[i] = r
				continue
			}
			idx[r.ID] = len(out)
			out = append(out, r)
		}
	}
	return out
}
