// Package check records named assertions the way k6 groups and checks do.
// A failed check is data, not an error: it is counted, logged and the
// caller moves on to the next check.
package check

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/studiowebux/authload/internal/executor"
)

// Result is one evaluated check
type Result struct {
	Group  string
	Name   string
	Passed bool
	VU     int
	Detail string // why it failed, empty on pass
}

// Sink receives every recorded check
type Sink interface {
	ObserveCheck(result Result)
}

// Counts holds the pass/fail tally of one check within a group
type Counts struct {
	Group  string
	Name   string
	Passes int
	Fails  int
}

// Rate returns the pass ratio, 0 when nothing was recorded
func (c Counts) Rate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}

type key struct {
	group string
	name  string
}

// Recorder aggregates check results. It is safe for concurrent use by
// many virtual users.
type Recorder struct {
	mu     sync.Mutex
	order  []key
	counts map[key]*Counts
	sinks  []Sink
	logger *zap.Logger
}

// NewRecorder creates a Recorder that forwards each result to sinks
func NewRecorder(logger *zap.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		counts: make(map[key]*Counts),
		sinks:  sinks,
		logger: logger,
	}
}

// Record stores one check outcome and returns passed
func (r *Recorder) Record(ctx context.Context, group, name string, passed bool, detail string) bool {
	result := Result{
		Group:  group,
		Name:   name,
		Passed: passed,
		VU:     executor.VUFromContext(ctx),
	}
	if !passed {
		result.Detail = detail
	}

	r.mu.Lock()
	k := key{group: group, name: name}
	c, ok := r.counts[k]
	if !ok {
		c = &Counts{Group: group, Name: name}
		r.counts[k] = c
		r.order = append(r.order, k)
	}
	if passed {
		c.Passes++
	} else {
		c.Fails++
	}
	sinks := r.sinks
	r.mu.Unlock()

	if !passed {
		r.logger.Warn("check failed",
			zap.String("group", group),
			zap.String("check", name),
			zap.Int("vu", result.VU),
			zap.String("detail", detail),
		)
	}

	for _, sink := range sinks {
		sink.ObserveCheck(result)
	}
	return passed
}

// Summary returns the tallies in first-recorded order
func (r *Recorder) Summary() []Counts {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Counts, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, *r.counts[k])
	}
	return out
}

// Totals returns the pass and fail counts over every check
func (r *Recorder) Totals() (passes, fails int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.counts {
		passes += c.Passes
		fails += c.Fails
	}
	return passes, fails
}

// Rate returns the overall pass ratio, 0 when nothing was recorded
func (r *Recorder) Rate() float64 {
	passes, fails := r.Totals()
	return Counts{Passes: passes, Fails: fails}.Rate()
}

// Lookup returns the tally of a single check
func (r *Recorder) Lookup(group, name string) (Counts, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counts[key{group: group, name: name}]
	if !ok {
		return Counts{}, false
	}
	return *c, true
}

// Group scopes checks under one name for one virtual user
type Group struct {
	rec  *Recorder
	ctx  context.Context
	name string
	ok   bool
}

// Group opens a named group. Checks recorded through it carry the VU of ctx.
func (r *Recorder) Group(ctx context.Context, name string) *Group {
	return &Group{rec: r, ctx: ctx, name: name, ok: true}
}

// Name returns the group name
func (g *Group) Name() string {
	return g.name
}

// Check records one assertion and returns passed
func (g *Group) Check(name string, passed bool, detail string) bool {
	if !passed {
		g.ok = false
	}
	return g.rec.Record(g.ctx, g.name, name, passed, detail)
}

// OK reports whether every check of the group passed so far
func (g *Group) OK() bool {
	return g.ok
}
