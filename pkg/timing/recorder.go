package timing

import (
	"math"
	"sync"
	"time"
)

type Phase string

const (
	PhaseRecvPre Phase = "recvPre"
	PhaseLoad    Phase = "load"
	PhaseInfer   Phase = "infer"
	PhasePost    Phase = "post"
)

// Sub-components measured inside a phase. They never extend a phase, they only
// describe part of it.
const (
	SubRender   = "render"
	SubEncode   = "encode"
	SubAssemble = "assemble"
)

type Clock func() time.Time

type Option func(*Recorder)

func WithClock(clock Clock) Option {
	return func(r *Recorder) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// Recorder slices one request into contiguous, disjoint phases. Beginning a
// phase closes the previous one at the same instant.
type Recorder struct {
	mu      sync.Mutex
	clock   Clock
	open    Phase
	started time.Time
	order   []Phase
	values  map[Phase]time.Duration
	subs    map[string]time.Duration
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		clock:  time.Now,
		values: make(map[Phase]time.Duration),
		subs:   make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Begin(phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	r.closeLocked(now)

	r.open = phase
	r.started = now
	if _, seen := r.values[phase]; !seen {
		r.order = append(r.order, phase)
		r.values[phase] = 0
	}
}

func (r *Recorder) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked(r.clock())
}

// Open reports the phase currently being timed, or "" when none is.
func (r *Recorder) Open() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Track starts timing a named sub-component and returns the function that stops it.
func (r *Recorder) Track(sub string) func() {
	start := r.clock()
	return func() {
		elapsed := r.clock().Sub(start)
		if elapsed < 0 {
			elapsed = 0
		}
		r.mu.Lock()
		r.subs[sub] += elapsed
		r.mu.Unlock()
	}
}

func (r *Recorder) closeLocked(now time.Time) {
	if r.open == "" {
		return
	}
	elapsed := now.Sub(r.started)
	if elapsed < 0 {
		elapsed = 0
	}
	r.values[r.open] += elapsed
	r.open = ""
}

// Phases returns a snapshot. A phase that is still open is reported up to now
// without being closed.
func (r *Recorder) Phases() Phases {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := Phases{
		order:  append([]Phase(nil), r.order...),
		values: make(map[Phase]time.Duration, len(r.values)),
		subs:   make(map[string]time.Duration, len(r.subs)),
	}
	for k, v := range r.values {
		p.values[k] = v
	}
	if r.open != "" {
		if elapsed := r.clock().Sub(r.started); elapsed > 0 {
			p.values[r.open] += elapsed
		}
	}
	for k, v := range r.subs {
		p.subs[k] = v
	}
	return p
}

type Phases struct {
	order  []Phase
	values map[Phase]time.Duration
	subs   map[string]time.Duration
}

func (p Phases) Order() []Phase {
	return append([]Phase(nil), p.order...)
}

func (p Phases) Has(phase Phase) bool {
	_, ok := p.values[phase]
	return ok
}

func (p Phases) Get(phase Phase) time.Duration {
	return p.values[phase]
}

func (p Phases) Sub(name string) time.Duration {
	return p.subs[name]
}

func (p Phases) Sum() time.Duration {
	var total time.Duration
	for _, v := range p.values {
		total += v
	}
	return total
}

// Seconds converts a duration to seconds rounded to millisecond precision.
// Use it only when serializing; internal arithmetic stays on time.Duration.
func Seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
