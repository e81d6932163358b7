// Package matcher pairs outgoing and incoming samples by correlation token.
package matcher

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/eapache/queue"

	"github.com/ccollicutt/latlog/pkg/parser"
)

// Status classifies a pair.
type Status string

const (
	// StatusMatched means an incoming sample answered the outgoing one.
	StatusMatched Status = "matched"

	// StatusLost means no incoming sample arrived within the window.
	StatusLost Status = "lost"

	// StatusSkewed means the incoming sample predates the outgoing one.
	StatusSkewed Status = "skewed"
)

// Pair is the outcome for one outgoing sample.
type Pair struct {
	Token    string
	Outgoing parser.Sample

	// Incoming is nil for lost pairs.
	Incoming *parser.Sample

	// Latency is incoming minus outgoing. It is negative for skewed pairs
	// and zero for lost ones.
	Latency time.Duration

	Status Status
}

// LatencyMs returns the latency in milliseconds. ok is false when the pair
// has no usable latency (lost or skewed).
func (p Pair) LatencyMs() (ms float64, ok bool) {
	if p.Status != StatusMatched {
		return 0, false
	}
	return float64(p.Latency) / float64(time.Millisecond), true
}

// Result holds the pairs and counters of one matching run.
type Result struct {
	// Pairs are ordered by outgoing arrival.
	Pairs []Pair

	// Outgoing and Incoming count accepted samples per direction.
	// Every accepted outgoing sample has exactly one Pair.
	Outgoing int
	Incoming int

	Matched int
	Lost    int
	Skewed  int

	// Expired counts lost pairs that were evicted by the window before
	// the end of input. They are included in Lost.
	Expired int

	// Spurious counts incoming samples with no pending outgoing sample.
	Spurious int

	// OutOfOrder counts samples rejected because their timestamp went
	// backwards within their direction.
	OutOfOrder int
}

// HasIssues reports whether anything other than clean matches was seen.
func (r *Result) HasIssues() bool {
	return r.Lost > 0 || r.Skewed > 0 || r.Spurious > 0
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithWindow bounds how long an outgoing sample waits for its answer.
// Zero means unbounded.
func WithWindow(d time.Duration) Option {
	return func(m *Matcher) {
		m.window = d
	}
}

// WithLogger sets the logger used for spurious and rejected samples.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// Matcher is the streaming form of Match. Feed samples with Process and
// collect pairs with Finalize. Not safe for concurrent use.
type Matcher struct {
	window time.Duration
	logger *slog.Logger

	// pending maps token to a FIFO of indexes into pairs.
	pending map[string]*queue.Queue
	pairs   []Pair
	open    []bool
	last    map[parser.Direction]time.Time

	result Result
}

// New creates a Matcher.
func New(opts ...Option) (*Matcher, error) {
	m := &Matcher{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		pending: make(map[string]*queue.Queue),
		last:    make(map[parser.Direction]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.window < 0 {
		return nil, fmt.Errorf("match window must not be negative, got %s", m.window)
	}
	return m, nil
}

// Process consumes one sample. Outgoing samples are queued under their
// token; incoming samples answer the oldest queued sample for the token.
func (m *Matcher) Process(s parser.Sample) error {
	switch s.Direction {
	case parser.DirectionOutgoing, parser.DirectionIncoming:
	default:
		return fmt.Errorf("sample %s:%d has unknown direction %q", s.Source, s.LineNum, s.Direction)
	}

	if last, seen := m.last[s.Direction]; seen && s.Timestamp.Before(last) {
		m.result.OutOfOrder++
		m.logger.Debug("rejecting out-of-order sample",
			"direction", s.Direction, "token", s.Token,
			"timestamp", s.Timestamp, "previous", last,
			"source", s.Source, "line", s.LineNum)
		return nil
	}
	m.last[s.Direction] = s.Timestamp

	if s.Direction == parser.DirectionOutgoing {
		m.result.Outgoing++
		m.enqueue(s)
		return nil
	}
	m.result.Incoming++
	m.answer(s)
	return nil
}

func (m *Matcher) enqueue(s parser.Sample) {
	q, ok := m.pending[s.Token]
	if !ok {
		q = queue.New()
		m.pending[s.Token] = q
	}
	q.Add(len(m.pairs))
	m.pairs = append(m.pairs, Pair{Token: s.Token, Outgoing: s})
	m.open = append(m.open, true)
}

func (m *Matcher) answer(in parser.Sample) {
	q, ok := m.pending[in.Token]
	if ok && m.window > 0 {
		cutoff := in.Timestamp.Add(-m.window)
		for q.Length() > 0 {
			idx := q.Peek().(int)
			if !m.pairs[idx].Outgoing.Timestamp.Before(cutoff) {
				break
			}
			q.Remove()
			m.close(idx, StatusLost)
			m.result.Expired++
		}
	}

	if !ok || q.Length() == 0 {
		m.result.Spurious++
		m.logger.Debug("spurious incoming sample",
			"token", in.Token, "timestamp", in.Timestamp,
			"source", in.Source, "line", in.LineNum)
		return
	}

	idx := q.Remove().(int)
	if q.Length() == 0 {
		delete(m.pending, in.Token)
	}

	incoming := in
	p := &m.pairs[idx]
	p.Incoming = &incoming
	p.Latency = in.Timestamp.Sub(p.Outgoing.Timestamp)
	if p.Latency < 0 {
		m.close(idx, StatusSkewed)
		m.logger.Debug("clock skew between directions",
			"token", in.Token, "latency", p.Latency)
		return
	}
	m.close(idx, StatusMatched)
}

func (m *Matcher) close(idx int, status Status) {
	m.pairs[idx].Status = status
	m.open[idx] = false
	switch status {
	case StatusMatched:
		m.result.Matched++
	case StatusLost:
		m.result.Lost++
	case StatusSkewed:
		m.result.Skewed++
	}
}

// Finalize marks every still-pending outgoing sample lost and returns the
// result. The Matcher must not be used afterwards.
func (m *Matcher) Finalize() *Result {
	for idx, open := range m.open {
		if open {
			m.close(idx, StatusLost)
		}
	}
	m.pending = nil

	res := m.result
	res.Pairs = m.pairs
	return &res
}

// Match pairs outgoing with incoming samples. All outgoing samples are
// queued before the incoming ones are consumed, so skewed clocks surface as
// skewed pairs instead of spurious samples. Direction fields are set from
// the argument position.
func Match(outgoing, incoming []parser.Sample, opts ...Option) (*Result, error) {
	m, err := New(opts...)
	if err != nil {
		return nil, err
	}

	for _, s := range outgoing {
		s.Direction = parser.DirectionOutgoing
		if err := m.Process(s); err != nil {
			return nil, err
		}
	}
	for _, s := range incoming {
		s.Direction = parser.DirectionIncoming
		if err := m.Process(s); err != nil {
			return nil, err
		}
	}

	return m.Finalize(), nil
}
