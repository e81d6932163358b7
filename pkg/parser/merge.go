package parser

import (
	"container/heap"
	"context"
	"io"
)

// MergedSource combines multiple SampleSources into a single stream
// ordered by timestamp (oldest first). Rotated or split logs of one
// direction become one chronological sequence.
type MergedSource struct {
	sources []SampleSource
	heap    *sampleHeap
	started bool
	closed  bool
	pushed  int
}

// NewMergedSource creates a SampleSource that merges multiple sources by timestamp.
// Samples with equal timestamps keep source order.
func NewMergedSource(sources ...SampleSource) *MergedSource {
	return &MergedSource{
		sources: sources,
		heap:    &sampleHeap{},
	}
}

// Next returns the next sample in timestamp order across all sources.
// Returns io.EOF when all sources are exhausted.
func (m *MergedSource) Next(ctx context.Context) (*Sample, error) {
	if !m.started && !m.closed {
		m.started = true
		if err := m.initHeap(ctx); err != nil {
			return nil, err
		}
	}

	if m.heap.Len() == 0 {
		return nil, io.EOF
	}

	// Pop the oldest sample
	item := heap.Pop(m.heap).(*heapItem)

	// Refill from the same source
	next, err := m.sources[item.sourceIdx].Next(ctx)
	if err == nil {
		m.push(next, item.sourceIdx)
	} else if err != io.EOF {
		return nil, err
	}

	return item.sample, nil
}

// initHeap reads the first sample from each source to initialize the heap.
func (m *MergedSource) initHeap(ctx context.Context) error {
	heap.Init(m.heap)

	for i, src := range m.sources {
		sample, err := src.Next(ctx)
		if err == io.EOF {
			continue // Empty source
		}
		if err != nil {
			return err
		}
		m.push(sample, i)
	}

	return nil
}

func (m *MergedSource) push(s *Sample, idx int) {
	m.pushed++
	heap.Push(m.heap, &heapItem{sample: s, sourceIdx: idx, order: m.pushed})
}

// Stats sums the stats of all merged sources.
func (m *MergedSource) Stats() SourceStats {
	var total SourceStats
	for _, src := range m.sources {
		total = total.Add(src.Stats())
	}
	return total
}

// Close releases all source resources.
func (m *MergedSource) Close() error {
	m.closed = true
	var firstErr error
	for _, src := range m.sources {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// heapItem wraps a Sample with its source index for the priority queue.
type heapItem struct {
	sample    *Sample
	sourceIdx int
	order     int
}

// sampleHeap implements heap.Interface for timestamp-ordered merging.
type sampleHeap []*heapItem

func (h sampleHeap) Len() int { return len(h) }

func (h sampleHeap) Less(i, j int) bool {
	ti, tj := h[i].sample.Timestamp, h[j].sample.Timestamp
	if ti.Equal(tj) {
		if h[i].sourceIdx != h[j].sourceIdx {
			return h[i].sourceIdx < h[j].sourceIdx
		}
		return h[i].order < h[j].order
	}
	return ti.Before(tj)
}

func (h sampleHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sampleHeap) Push(x interface{}) {
	*h = append(*h, x.(*heapItem))
}

func (h *sampleHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}
