package locator

import (
	"bytes"
	"context"
	"image"
	_ "image/png"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

// Default resolver tuning
const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 500 * time.Millisecond

	// dedupTolerance is the center-point distance in pixels under which two
	// candidates from different locators count as the same element.
	dedupTolerance = 8
)

// DefaultOrder is the detection-strategy preference used when none is
// configured.
var DefaultOrder = []Kind{KindText, KindPath, KindImage}

// Query is what a detector receives for one locator in one poll
type Query struct {
	Locator  Locator
	Template []byte      // Image bytes for image locators, resolved by name
	Region   core.Bounds // Pixel search region; zero means whole screen
}

// Detector is one detection capability. Given a snapshot and a query it
// returns zero or more candidate elements; it is invoked once per poll.
type Detector interface {
	Detect(ctx context.Context, snap *core.Snapshot, q Query) ([]core.ElementInfo, error)
}

// TemplateSource resolves logical template names to image bytes
type TemplateSource interface {
	Template(name string) ([]byte, bool)
}

// Options bound one resolution
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
	ROI      ROI
	Index    int    // 0-based disambiguation; -1 selects nothing
	Order    []Kind // Strategy preference; DefaultOrder when empty
}

// Resolution is the successful outcome of a resolve
type Resolution struct {
	Matches []core.ElementInfo
	Polls   int
	Elapsed time.Duration

	// Annotated holds the last screenshot with the search region drawn on
	// it, when the region was narrowed and annotation is on.
	Annotated []byte
}

// First returns the first match in detection order
func (r *Resolution) First() core.ElementInfo {
	return r.Matches[0]
}

// Resolver polls detection capabilities until a locator set matches or the
// timeout elapses.
type Resolver struct {
	driver    core.Driver
	detectors map[Kind]Detector
	templates TemplateSource
	annotate  bool
	logger    *zap.Logger
}

// NewResolver builds a resolver over the given capabilities
func NewResolver(driver core.Driver, detectors map[Kind]Detector, templates TemplateSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		driver:    driver,
		detectors: detectors,
		templates: templates,
		annotate:  true,
		logger:    logger,
	}
}

// SetAnnotate toggles debug annotation of region-constrained screenshots
func (r *Resolver) SetAnnotate(on bool) {
	r.annotate = on
}

// Resolve drives the poll loop for one locator set. It returns NotFound
// once the timeout elapses with zero matches, TemplateNotFound immediately
// for an unregistered image name, and Cancelled when ctx ends mid-wait.
// It never blocks past timeout plus one interval.
//
// On NotFound the returned Resolution is non-nil and carries the poll
// count and annotated screenshot for diagnostics; every other error
// returns a nil Resolution.
func (r *Resolver) Resolve(ctx context.Context, set Set, opts Options) (*Resolution, error) {
	if len(set) == 0 {
		return nil, core.ErrNotFound.WithMessage("empty locator set")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if len(opts.Order) == 0 {
		opts.Order = DefaultOrder
	}
	roi := opts.ROI.Clamp()

	// Image names must resolve before any polling starts.
	templates := make(map[string][]byte)
	for _, l := range set {
		if l.Kind != KindImage {
			continue
		}
		data, ok := r.templates.Template(l.Value)
		if !ok {
			return nil, core.ErrTemplateNotFound.WithMessagef("image template %q is not registered", l.Value).
				WithDetails(map[string]interface{}{"template": l.Value})
		}
		templates[l.Value] = data
	}

	ordered := orderSet(set, opts.Order)

	start := time.Now()
	deadline := start.Add(opts.Timeout)
	polls := 0
	var lastShot []byte
	var lastRegion core.Bounds

	for {
		if err := ctx.Err(); err != nil {
			return nil, core.ErrCancelled.WithCause(err)
		}

		snap, err := r.capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, core.ErrCancelled.WithCause(ctx.Err())
			}
			return nil, core.ErrBackend.WithMessage("snapshot capture failed").WithCause(err)
		}
		lastShot = snap.Screenshot
		region := regionFor(snap, roi)
		lastRegion = region
		polls++

		matches, err := r.detectAll(ctx, snap, ordered, templates, region)
		if err != nil {
			return nil, err
		}

		if selected, ok := selectMatches(matches, opts.Index); ok {
			r.logger.Debug("locator resolved",
				zap.String("set", set.String()),
				zap.Int("polls", polls),
				zap.Int("matches", len(selected)),
				zap.Duration("elapsed", time.Since(start)))
			res := &Resolution{Matches: selected, Polls: polls, Elapsed: time.Since(start)}
			r.attachAnnotation(res, lastShot, roi, lastRegion)
			return res, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := opts.Interval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, core.ErrCancelled.WithCause(ctx.Err())
		case <-time.After(wait):
		}
	}

	err := core.ErrNotFound.WithMessagef("no element matched %s after %s (%d polls)",
		set.String(), opts.Timeout, polls)
	res := &Resolution{Polls: polls, Elapsed: time.Since(start)}
	r.attachAnnotation(res, lastShot, roi, lastRegion)
	if res.Annotated != nil {
		err = err.WithDetails(map[string]interface{}{"annotated": true})
	}
	return res, err
}

// capture fetches the screenshot and element list for one poll
func (r *Resolver) capture(ctx context.Context) (*core.Snapshot, error) {
	shot, err := r.driver.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	elements, err := r.driver.Elements(ctx)
	if err != nil {
		return nil, err
	}
	snap := &core.Snapshot{Screenshot: shot, Elements: elements}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(shot)); err == nil {
		snap.Width = cfg.Width
		snap.Height = cfg.Height
	}
	return snap, nil
}

// detectAll runs every locator's detector in strategy order and merges the
// candidates, deduplicating by on-screen position.
func (r *Resolver) detectAll(ctx context.Context, snap *core.Snapshot, ordered Set, templates map[string][]byte, region core.Bounds) ([]core.ElementInfo, error) {
	var merged []core.ElementInfo
	for _, l := range ordered {
		det, ok := r.detectors[l.Kind]
		if !ok {
			return nil, core.ErrBackend.WithMessagef("no %s detection capability configured", l.Kind)
		}
		q := Query{Locator: l, Template: templates[l.Value], Region: region}
		candidates, err := det.Detect(ctx, snap, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, core.ErrCancelled.WithCause(ctx.Err())
			}
			return nil, core.ErrBackend.WithMessagef("%s detection failed", l.Kind).WithCause(err)
		}
		for _, c := range candidates {
			if !inRegion(c, region) {
				continue
			}
			if !duplicate(merged, c) {
				merged = append(merged, c)
			}
		}
	}
	return merged, nil
}

func (r *Resolver) attachAnnotation(res *Resolution, shot []byte, roi ROI, region core.Bounds) {
	if !r.annotate || roi.IsFull() || len(shot) == 0 {
		return
	}
	annotated, err := AnnotateRegion(shot, region)
	if err != nil {
		r.logger.Debug("region annotation failed", zap.Error(err))
		return
	}
	res.Annotated = annotated
}

// orderSet sorts the set by strategy preference, keeping the original
// order among locators of the same kind. Kinds missing from the preference
// come last in set order.
func orderSet(set Set, order []Kind) Set {
	rank := make(map[Kind]int, len(order))
	for i, k := range order {
		rank[k] = i
	}
	out := make(Set, 0, len(set))
	for _, k := range order {
		for _, l := range set {
			if l.Kind == k {
				out = append(out, l)
			}
		}
	}
	for _, l := range set {
		if _, known := rank[l.Kind]; !known {
			out = append(out, l)
		}
	}
	return out
}

// selectMatches applies index disambiguation. Index -1 means no selection;
// an index beyond the current matches keeps polling.
func selectMatches(matches []core.ElementInfo, index int) ([]core.ElementInfo, bool) {
	if len(matches) == 0 {
		return nil, false
	}
	if index < 0 {
		return matches, true
	}
	if index >= len(matches) {
		return nil, false
	}
	return []core.ElementInfo{matches[index]}, true
}

func inRegion(el core.ElementInfo, region core.Bounds) bool {
	if region == (core.Bounds{}) {
		return true
	}
	c := el.Bounds.Center()
	return region.Contains(c.X, c.Y)
}

func duplicate(kept []core.ElementInfo, candidate core.ElementInfo) bool {
	cc := candidate.Bounds.Center()
	for _, k := range kept {
		kc := k.Bounds.Center()
		if abs(kc.X-cc.X) <= dedupTolerance && abs(kc.Y-cc.Y) <= dedupTolerance {
			return true
		}
	}
	return false
}

func regionFor(snap *core.Snapshot, roi ROI) core.Bounds {
	if roi.IsFull() || snap.Width == 0 || snap.Height == 0 {
		return core.Bounds{}
	}
	return roi.Bounds(snap.Width, snap.Height)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
