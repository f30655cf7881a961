// loader.go - Batch-Quellen und Prefetching
//
// Dieses Modul enthaelt:
// - Source: deterministische Batch-Quelle, adressiert per Schritt-Index
// - SliceSource: In-Memory-Quelle mit fester Batch-Groesse
// - Prefetcher: Producer-Consumer-Pipeline ueber errgroup
//
// Batches duerfen nebenlaeufig vorgeladen werden, konsumiert wird strikt
// sequenziell im festen Forget/Retain-Schema - die Reproduzierbarkeit
// haengt daran.
package trainer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Source liefert Forget- und Retain-Batches. Die Adressierung per
// Schritt-Index macht die Quelle deterministisch: derselbe Index liefert
// denselben Batch.
type Source interface {
	ForgetBatch(ctx context.Context, step int) ([][]int, error)
	RetainBatch(ctx context.Context, step int) ([][]int, error)
}

// SliceSource zykelt deterministisch ueber In-Memory-Beispiele.
// Groesse und Balance des Retain-Korpus liegen beim Aufrufer.
type SliceSource struct {
	Forget    [][]int
	Retain    [][]int
	BatchSize int
}

func (s *SliceSource) batch(pool [][]int, step int) ([][]int, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("empty example pool")
	}
	size := s.BatchSize
	if size <= 0 {
		size = 8
	}
	out := make([][]int, 0, size)
	for i := 0; i < size; i++ {
		out = append(out, pool[(step*size+i)%len(pool)])
	}
	return out, nil
}

func (s *SliceSource) ForgetBatch(_ context.Context, step int) ([][]int, error) {
	return s.batch(s.Forget, step)
}

func (s *SliceSource) RetainBatch(_ context.Context, step int) ([][]int, error) {
	return s.batch(s.Retain, step)
}

// stepBatches ist ein vorgeladenes Batch-Paar fuer einen Schritt.
type stepBatches struct {
	step   int
	forget [][]int
	retain [][]int
}

// Prefetcher laedt Batch-Paare voraus. Der Producer laeuft in einer
// errgroup; der Konsument liest strikt in Schritt-Reihenfolge.
type Prefetcher struct {
	ch     chan stepBatches
	g      *errgroup.Group
	cancel context.CancelFunc
}

// NewPrefetcher startet den Producer fuer steps Schritte mit der
// angegebenen Kanaltiefe.
func NewPrefetcher(ctx context.Context, src Source, steps, depth int) *Prefetcher {
	if depth <= 0 {
		depth = 2
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	p := &Prefetcher{ch: make(chan stepBatches, depth), g: g, cancel: cancel}
	g.Go(func() error {
		defer close(p.ch)
		for step := 0; step < steps; step++ {
			forget, err := src.ForgetBatch(ctx, step)
			if err != nil {
				return fmt.Errorf("forget batch %d: %w", step, err)
			}
			retain, err := src.RetainBatch(ctx, step)
			if err != nil {
				return fmt.Errorf("retain batch %d: %w", step, err)
			}
			select {
			case p.ch <- stepBatches{step: step, forget: forget, retain: retain}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	return p
}

// Next liefert das naechste Batch-Paar; ok == false nach dem letzten.
func (p *Prefetcher) Next(ctx context.Context) (stepBatches, bool, error) {
	select {
	case b, ok := <-p.ch:
		if !ok {
			return stepBatches{}, false, p.g.Wait()
		}
		return b, true, nil
	case <-ctx.Done():
		return stepBatches{}, false, ctx.Err()
	}
}

// Close stoppt den Producer und wartet auf ihn.
func (p *Prefetcher) Close() error {
	p.cancel()
	if err := p.g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
