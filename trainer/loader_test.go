// loader_test.go - Tests fuer Batch-Quellen und Prefetching
package trainer

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSliceSourceDeterministic(t *testing.T) {
	src := &SliceSource{
		Forget:    [][]int{{1}, {2}, {3}},
		Retain:    [][]int{{4}, {5}},
		BatchSize: 2,
	}
	ctx := context.Background()

	// Gleicher Schritt-Index, gleicher Batch.
	a, err := src.ForgetBatch(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	b, err := src.ForgetBatch(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("ForgetBatch(7) nicht deterministisch:\n%s", diff)
	}

	// Zyklisch ueber den Pool.
	got, err := src.RetainBatch(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int{{4}, {5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RetainBatch(0) (-want +got):\n%s", diff)
	}
}

func TestSliceSourceEmptyPool(t *testing.T) {
	src := &SliceSource{Retain: [][]int{{1}}}
	if _, err := src.ForgetBatch(context.Background(), 0); err == nil {
		t.Error("leerer Forget-Pool ohne Fehler")
	}
}

func TestPrefetcherOrder(t *testing.T) {
	src := &SliceSource{
		Forget:    [][]int{{1}, {2}, {3}, {4}},
		Retain:    [][]int{{5}, {6}},
		BatchSize: 1,
	}
	ctx := context.Background()

	pf := NewPrefetcher(ctx, src, 5, 2)
	defer pf.Close()

	// Konsum strikt in Schritt-Reihenfolge, unabhaengig vom Vorladen.
	for want := 0; want < 5; want++ {
		b, ok, err := pf.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("Pipeline endet bei Schritt %d, erwartet 5", want)
		}
		if b.step != want {
			t.Errorf("Schritt %d geliefert, erwartet %d", b.step, want)
		}

		direct, _ := src.ForgetBatch(ctx, want)
		if diff := cmp.Diff(direct, b.forget); diff != "" {
			t.Errorf("vorgeladener Batch %d weicht ab:\n%s", want, diff)
		}
	}

	if _, ok, err := pf.Next(ctx); ok || err != nil {
		t.Errorf("nach dem letzten Schritt: ok=%v err=%v", ok, err)
	}
}

func TestPrefetcherCloseEarly(t *testing.T) {
	src := &SliceSource{
		Forget:    [][]int{{1}},
		Retain:    [][]int{{2}},
		BatchSize: 1,
	}
	ctx := context.Background()

	pf := NewPrefetcher(ctx, src, 1000, 1)
	if _, ok, err := pf.Next(ctx); !ok || err != nil {
		t.Fatalf("erster Next: ok=%v err=%v", ok, err)
	}

	// Vorzeitiges Schliessen darf keinen Fehler liefern.
	if err := pf.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
