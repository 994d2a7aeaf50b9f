package dynbg

import (
	"github.com/jmylchreest/pagetint/internal/colour"
	"github.com/jmylchreest/pagetint/internal/dom"
)

// mediaTags paint content that is not a flat background.
var mediaTags = map[string]bool{
	"img":     true,
	"canvas":  true,
	"video":   true,
	"svg":     true,
	"picture": true,
}

// scanAll starts a new pass. Anchors are evaluated first, then the body
// subtree is walked in batches, yielding to the scheduler between them.
// A request that arrives while a pass is walking runs once that pass ends.
func (a *Applier) scanAll() {
	a.mu.Lock()
	if !a.active.Load() {
		a.mu.Unlock()
		return
	}
	if a.scanning {
		a.rescanQueued = true
		a.mu.Unlock()
		return
	}
	gen := a.generation
	a.stats.Scans++

	root := a.doc.Root()
	if root == nil {
		a.mu.Unlock()
		return
	}
	a.scanning = true
	body := a.doc.Body()

	anchors := map[dom.Element]bool{root: true}
	a.tryApplyLocked(root, true)
	if body != nil {
		anchors[body] = true
		a.tryApplyLocked(body, true)
	}

	from := root
	if body != nil {
		from = body
	}
	w := a.doc.Walk(from)
	a.mu.Unlock()

	a.processBatch(gen, w, anchors)
}

// processBatch evaluates up to batchSize elements and reschedules itself
// until the walker is exhausted. A batch left over from before Stop does nothing.
func (a *Applier) processBatch(gen uint64, w dom.Walker, anchors map[dom.Element]bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active.Load() || gen != a.generation {
		return
	}

	for n := 0; n < a.batchSize; n++ {
		el, ok := w.Next()
		if !ok {
			a.logger.Trace("scan complete", "overrides", len(a.records))
			a.scanning = false
			if a.rescanQueued {
				a.rescanQueued = false
				a.rescanSoon()
			}
			return
		}
		if anchors[el] {
			continue
		}
		a.tryApplyLocked(el, false)
	}

	a.sched.RequestIdle(func() {
		a.processBatch(gen, w, anchors)
	}, a.batchTimeout)
}

// tryApplyLocked evaluates one element and commits, updates or reverts its
// override. Caller holds mu.
func (a *Applier) tryApplyLocked(el dom.Element, anchor bool) {
	if el == nil || mediaTags[el.Tag()] {
		return
	}
	a.stats.Evaluated++

	width, height, err := el.Size()
	if err != nil {
		a.elementFailed(el, err)
		return
	}
	if width <= 0 || height <= 0 {
		a.revertLocked(el)
		return
	}
	if !anchor && width*height < a.settings.MinElementArea {
		a.revertLocked(el)
		return
	}

	style, err := el.ComputedStyle()
	if err != nil {
		a.elementFailed(el, err)
		return
	}
	if style.HasBackgroundImage() {
		a.revertLocked(el)
		return
	}

	bg, ok := colour.Parse(style.BackgroundColor)
	if !ok || bg.IsTransparent() {
		a.revertLocked(el)
		return
	}

	text, ok := colour.Parse(style.Color)
	if !ok {
		text = colour.Black
	}

	rec := a.records[el]
	base := bg
	if rec != nil {
		if bg.Equal(rec.applied) {
			// The computed colour is our own override; blend from the baseline.
			base = rec.baseline
		} else {
			// The page repainted the element underneath us.
			rec.baseline = bg
		}
	}

	d := Decide(base, text, a.target, a.settings)
	if !d.Apply {
		a.revertLocked(el)
		return
	}

	if rec == nil {
		prev, err := el.InlineBackground()
		if err != nil {
			a.elementFailed(el, err)
			return
		}
		a.seq++
		rec = &changeRecord{previous: prev, baseline: base, seq: a.seq}
	}

	if err := el.SetInlineBackground(d.Blended.String()); err != nil {
		a.elementFailed(el, err)
		return
	}
	if _, known := a.records[el]; !known {
		a.records[el] = rec
		a.stats.Applied++
	}
	rec.applied = d.Blended
	rec.weight = d.Weight
}
