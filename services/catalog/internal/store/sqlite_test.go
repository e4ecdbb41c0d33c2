package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_Contract(t *testing.T) {
	recordStoreContract(t, openTestSQLite(t))
}

func TestSQLiteStore_RatingStateSurvivesMerge(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	rec, err := s.Insert(ctx, NewRecord{ExternalID: "42", Title: "Foo", Kind: KindMovie, GenreTags: []int{1}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.SeedRatings(ctx, rec.ID, []float64{8, 6}, 1, map[string]int{"drama": 2}); err != nil {
		t.Fatalf("seed ratings: %v", err)
	}

	merged, err := s.MergeCatalog(ctx, rec.ID, CatalogUpdate{GenreTags: []int{1, 7}})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if diff := cmp.Diff([]float64{8, 6}, merged.Ratings); diff != "" {
		t.Fatalf("ratings (-want +got):\n%s", diff)
	}
	if merged.AverageRating == nil || *merged.AverageRating != 7 {
		t.Fatalf("expected average 7, got %v", merged.AverageRating)
	}
	if merged.NegativeFlagCount != 1 || merged.CategoryTally["drama"] != 2 {
		t.Fatalf("rating state changed: %+v", merged)
	}
	if diff := cmp.Diff([]int{1, 7}, merged.GenreTags); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}

	found, err := s.Find(ctx, Filter{Category: "drama", MinRating: ptr(6.5), FlaggedOnly: true})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 record, got %d", len(found))
	}
}

func TestSQLiteStore_ConcurrentInsertYieldsOneRecord(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Insert(ctx, NewRecord{ExternalID: "99", Title: "Race", Kind: KindMovie})
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful insert, got %d (%v)", ok, errs)
	}
	found, _ := s.Find(ctx, Filter{})
	if len(found) != 1 {
		t.Fatalf("expected 1 record, got %d", len(found))
	}
}

func TestSQLiteStore_FreeTextFoldsNonASCIILikeMemory(t *testing.T) {
	ctx := context.Background()
	lite := openTestSQLite(t)
	mem := NewMemoryStore()
	for _, nr := range []NewRecord{
		{ExternalID: "1", Title: "ÉCOLE DES FEMMES", Kind: KindMovie},
		{ExternalID: "2", Title: "Straße nach Süden", Kind: KindMovie},
		{ExternalID: "3", Title: "Plain", Kind: KindMovie},
	} {
		for _, s := range []RecordStore{lite, mem} {
			if _, err := s.Insert(ctx, nr); err != nil {
				t.Fatalf("insert %s: %v", nr.ExternalID, err)
			}
		}
	}

	for _, q := range []string{"école", "SÜDEN", "100%"} {
		fromLite, err := lite.Find(ctx, Filter{FreeText: q})
		if err != nil {
			t.Fatalf("sqlite find %q: %v", q, err)
		}
		fromMem, err := mem.Find(ctx, Filter{FreeText: q})
		if err != nil {
			t.Fatalf("memory find %q: %v", q, err)
		}
		if len(fromLite) != len(fromMem) {
			t.Fatalf("query %q: sqlite matched %d, memory matched %d", q, len(fromLite), len(fromMem))
		}
	}
	if got, _ := lite.Find(ctx, Filter{FreeText: "école"}); len(got) != 1 || got[0].ExternalID != "1" {
		t.Fatalf("expected the accented title to match, got %+v", got)
	}
}
