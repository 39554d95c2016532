package stream

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

// MinInterval is the fastest workspace capture cadence; shorter requested
// intervals are raised to it.
const MinInterval = 500 * time.Millisecond

// ElementFilter selects which captured elements a snapshot keeps.
type ElementFilter func(core.ElementInfo) bool

// MatchText returns a filter keeping elements whose text or id contains
// pattern, case-insensitively. An empty pattern keeps every element.
func MatchText(pattern string) ElementFilter {
	pattern = strings.ToLower(pattern)
	return func(el core.ElementInfo) bool {
		if pattern == "" {
			return true
		}
		return strings.Contains(strings.ToLower(el.Text), pattern) ||
			strings.Contains(strings.ToLower(el.ID), pattern)
	}
}

// WorkspaceOptions bound one workspace subscription.
type WorkspaceOptions struct {
	Interval      time.Duration
	IncludeSource bool

	// Filter drops non-matching elements from every capture before the
	// content hash is computed, so churn outside the filter does not
	// trigger emissions.
	Filter ElementFilter
}

// WorkspaceSnapshot is one emitted capture with its content hash.
type WorkspaceSnapshot struct {
	Snapshot   core.Snapshot `json:"snapshot"`
	Hash       string        `json:"hash"`
	CapturedAt time.Time     `json:"capturedAt"`
}

// Filter applies an element filter to the snapshot and recomputes its
// content hash. A nil filter is a no-op.
func (s *WorkspaceSnapshot) Filter(filter ElementFilter) {
	if filter == nil {
		return
	}
	kept := make([]core.ElementInfo, 0, len(s.Snapshot.Elements))
	for _, el := range s.Snapshot.Elements {
		if filter(el) {
			kept = append(kept, el)
		}
	}
	s.Snapshot.Elements = kept
	s.Hash = hashSnapshot(&s.Snapshot)
}

// Workspace periodically captures screen state from a driver and emits a
// snapshot only when its content hash changed since the last emission.
// Snapshots may be skipped while a consumer lags but are never reordered.
type Workspace struct {
	driver core.Driver
	logger *zap.Logger
}

// NewWorkspace builds a workspace streamer over the given driver.
func NewWorkspace(driver core.Driver, logger *zap.Logger) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workspace{driver: driver, logger: logger.Named("workspace")}
}

// Capture fetches one snapshot. Screenshot and element list are fetched
// in parallel; page source only when asked for.
func (w *Workspace) Capture(ctx context.Context, includeSource bool) (*WorkspaceSnapshot, error) {
	var snap core.Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		shot, err := w.driver.Screenshot(gctx)
		if err != nil {
			return err
		}
		snap.Screenshot = shot
		return nil
	})
	g.Go(func() error {
		elements, err := w.driver.Elements(gctx)
		if err != nil {
			return err
		}
		snap.Elements = elements
		return nil
	})
	if includeSource {
		g.Go(func() error {
			source, err := w.driver.PageSource(gctx)
			if err != nil {
				return err
			}
			snap.Source = source
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, core.ErrCancelled.WithCause(ctx.Err())
		}
		return nil, core.ErrBackend.WithMessage("workspace capture failed").WithCause(err)
	}

	return &WorkspaceSnapshot{
		Snapshot:   snap,
		Hash:       hashSnapshot(&snap),
		CapturedAt: time.Now(),
	}, nil
}

// Stream captures at the requested cadence until ctx ends and delivers
// hash-distinct snapshots. The channel closes when the stream stops.
func (w *Workspace) Stream(ctx context.Context, opts WorkspaceOptions) <-chan WorkspaceSnapshot {
	interval := opts.Interval
	if interval < MinInterval {
		interval = MinInterval
	}

	out := make(chan WorkspaceSnapshot, 1)
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	go func() {
		defer close(out)
		var lastHash string
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			snap, err := w.Capture(ctx, opts.IncludeSource)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Debug("workspace capture failed", zap.Error(err))
				continue
			}
			snap.Filter(opts.Filter)
			if snap.Hash == lastHash {
				continue
			}

			// A lagging consumer gets the newest snapshot in place of
			// the pending one; emissions coalesce but never reorder.
			select {
			case out <- *snap:
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- *snap:
				default:
				}
			}
			lastHash = snap.Hash
		}
	}()
	return out
}

// hashSnapshot folds screenshot bytes, element list and source into one
// content hash. Identical screens produce identical hashes.
func hashSnapshot(snap *core.Snapshot) string {
	h := sha256.New()
	h.Write(snap.Screenshot)
	if encoded, err := json.Marshal(snap.Elements); err == nil {
		h.Write(encoded)
	}
	h.Write([]byte(snap.Source))
	return hex.EncodeToString(h.Sum(nil))
}
