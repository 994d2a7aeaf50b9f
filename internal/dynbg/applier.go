// Package dynbg implements the dynamic, contrast-aware background applier.
//
// An Applier walks a live document, shifts bright element backgrounds toward
// a target colour while keeping text legible, and keeps the page converged as
// it mutates. Every override it makes is recorded so it can be reverted
// exactly on Stop or when an element stops qualifying.
package dynbg

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/pagetint/internal/colour"
	"github.com/jmylchreest/pagetint/internal/dom"
	"github.com/jmylchreest/pagetint/internal/scheduler"
)

// Scheduling defaults.
const (
	DefaultBatchSize     = 300
	DefaultRescanTimeout = 500 * time.Millisecond
	DefaultBatchTimeout  = 200 * time.Millisecond
)

// changeRecord remembers what an element looked like before its override.
type changeRecord struct {
	previous string
	baseline colour.RGBA
	applied  colour.RGBA
	weight   float64
	seq      uint64
}

// Override describes one active override.
type Override struct {
	Element  dom.Element
	Previous string
	Baseline colour.RGBA
	Applied  colour.RGBA
	Weight   float64
}

// Stats counts engine activity since construction.
type Stats struct {
	Scans     int
	Evaluated int
	Applied   int
	Reverted  int
	Errors    int
}

// Option configures an Applier.
type Option func(*Applier)

// WithOverrides applies partial settings over the defaults.
func WithOverrides(o Overrides) Option {
	return func(a *Applier) {
		a.settings = o.Apply(a.settings)
	}
}

// WithSettings replaces the settings wholesale.
func WithSettings(s Settings) Option {
	return func(a *Applier) {
		a.settings = s
	}
}

// WithScheduler sets the idle scheduler. A nil scheduler selects the
// fixed-delay timer fallback.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(a *Applier) {
		a.sched = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(a *Applier) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithBatchSize sets how many elements are evaluated between yields.
func WithBatchSize(n int) Option {
	return func(a *Applier) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithIdleTimeout sets the idle deadlines for re-scans and between batches.
func WithIdleTimeout(rescan, batch time.Duration) Option {
	return func(a *Applier) {
		if rescan > 0 {
			a.rescanTimeout = rescan
		}
		if batch > 0 {
			a.batchTimeout = batch
		}
	}
}

// Applier is the dynamic background engine for one document.
type Applier struct {
	doc    dom.Document
	sched  scheduler.Scheduler
	logger hclog.Logger

	settings      Settings
	batchSize     int
	rescanTimeout time.Duration
	batchTimeout  time.Duration

	// mu guards the fields below. It is never held while waiting on the
	// scheduler. DOM writes are made under it, so document observers must
	// not call back into the Applier.
	mu           sync.Mutex
	target       colour.RGBA
	disconnect   func()
	generation   uint64
	scanning     bool
	rescanQueued bool
	records      map[dom.Element]*changeRecord
	seq          uint64
	stats        Stats

	active atomic.Bool

	pendingMu     sync.Mutex
	rescanPending bool
}

// New returns an inactive applier for doc. An unparseable target falls back
// to opaque white; the target is always made opaque.
func New(doc dom.Document, targetHex string, opts ...Option) *Applier {
	a := &Applier{
		doc:           doc,
		logger:        hclog.NewNullLogger(),
		settings:      DefaultSettings(),
		batchSize:     DefaultBatchSize,
		rescanTimeout: DefaultRescanTimeout,
		batchTimeout:  DefaultBatchTimeout,
		target:        parseTarget(targetHex),
		records:       make(map[dom.Element]*changeRecord),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sched == nil {
		a.sched = scheduler.Timer{}
	}
	return a
}

func parseTarget(hex string) colour.RGBA {
	c, ok := colour.ParseHex(hex)
	if !ok {
		return colour.White
	}
	return c.Opaque()
}

// Start begins observing the document and schedules the first scan.
// Calling Start on an active applier does nothing.
func (a *Applier) Start() {
	a.mu.Lock()
	if a.active.Load() {
		a.mu.Unlock()
		return
	}
	a.active.Store(true)
	a.disconnect = a.doc.Observe(a.onMutations)
	a.mu.Unlock()

	a.logger.Debug("applier started", "target", a.Target().Hex())
	a.rescanSoon()
}

// Stop disconnects observation and reverts every override. Calling Stop on an
// inactive applier does nothing.
func (a *Applier) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active.Load() {
		return
	}
	a.active.Store(false)
	a.generation++
	a.scanning = false
	a.rescanQueued = false
	if a.disconnect != nil {
		a.disconnect()
		a.disconnect = nil
	}

	reverted := len(a.records)
	a.revertAllLocked()
	a.logger.Debug("applier stopped", "reverted", reverted)
}

// UpdateTarget replaces the target colour. It reverts nothing; if the applier
// is active a re-scan is scheduled with the new target.
func (a *Applier) UpdateTarget(targetHex string) {
	a.mu.Lock()
	a.target = parseTarget(targetHex)
	a.mu.Unlock()

	if a.active.Load() {
		a.rescanSoon()
	}
}

// Active reports whether the applier is observing the document.
func (a *Applier) Active() bool {
	return a.active.Load()
}

// Target returns the current target colour.
func (a *Applier) Target() colour.RGBA {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// Settings returns the tunables.
func (a *Applier) Settings() Settings {
	return a.settings
}

// Stats returns activity counters.
func (a *Applier) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Overrides returns the active overrides in the order they were first applied.
func (a *Applier) Overrides() []Override {
	a.mu.Lock()
	defer a.mu.Unlock()

	type entry struct {
		el  dom.Element
		rec *changeRecord
	}
	entries := make([]entry, 0, len(a.records))
	for el, rec := range a.records {
		entries = append(entries, entry{el: el, rec: rec})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rec.seq < entries[j].rec.seq })

	out := make([]Override, 0, len(entries))
	for _, e := range entries {
		out = append(out, Override{
			Element:  e.el,
			Previous: e.rec.previous,
			Baseline: e.rec.baseline,
			Applied:  e.rec.applied,
			Weight:   e.rec.weight,
		})
	}
	return out
}

// onMutations is the observer callback; relevant changes schedule a re-scan.
func (a *Applier) onMutations(records []dom.Mutation) {
	if !a.active.Load() {
		return
	}
	for _, m := range records {
		if m.Kind == dom.ChildList || (m.Kind == dom.Attributes && (m.Attribute == "style" || m.Attribute == "class")) {
			a.rescanSoon()
			return
		}
	}
}

// rescanSoon schedules a scan unless one is already pending.
func (a *Applier) rescanSoon() {
	a.pendingMu.Lock()
	if a.rescanPending {
		a.pendingMu.Unlock()
		return
	}
	a.rescanPending = true
	a.pendingMu.Unlock()

	a.sched.RequestIdle(func() {
		a.pendingMu.Lock()
		a.rescanPending = false
		a.pendingMu.Unlock()
		a.scanAll()
	}, a.rescanTimeout)
}

// revertLocked restores el and drops its record. Caller holds mu.
func (a *Applier) revertLocked(el dom.Element) {
	rec, ok := a.records[el]
	if !ok {
		return
	}
	delete(a.records, el)
	if err := el.SetInlineBackground(rec.previous); err != nil {
		a.logger.Trace("revert failed", "element", el, "error", err)
		return
	}
	a.stats.Reverted++
}

// revertAllLocked restores every recorded element. Caller holds mu.
func (a *Applier) revertAllLocked() {
	for el := range a.records {
		a.revertLocked(el)
	}
	clear(a.records)
}

// elementFailed skips el for this pass after a read or write error. Its
// record is kept, so a detached element that is re-inserted still blends from
// its baseline and Stop restores its original value.
func (a *Applier) elementFailed(el dom.Element, err error) {
	a.stats.Errors++
	a.logger.Trace("skipping element", "element", el, "error", err)
}
