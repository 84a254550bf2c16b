package watch

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/baltiqcast/driversync/internal/errors"
	"github.com/baltiqcast/driversync/internal/logging"
	"github.com/baltiqcast/driversync/internal/store"
	syncpkg "github.com/baltiqcast/driversync/internal/sync"
)

// Options holds watcher configuration.
type Options struct {
	// ProbeInterval is how often the storage-loss probe runs.
	ProbeInterval time.Duration
	// SuccessHold is how long the success banner stays before auto-hiding.
	SuccessHold time.Duration
	// SyncOnReconnect triggers an automatic drain on the offline→online
	// transition when the queue is nonempty.
	SyncOnReconnect bool
}

// DefaultOptions returns the watcher defaults.
func DefaultOptions() Options {
	return Options{
		ProbeInterval:   30 * time.Second,
		SuccessHold:     4 * time.Second,
		SyncOnReconnect: true,
	}
}

// StateListener receives banner state transitions.
type StateListener func(BannerState)

// LossListener receives each newly detected storage loss. The report carries
// only the entries found by that probe, not the accumulated sticky total.
type LossListener func(store.LossReport)

// Watcher owns the banner state machine, the reconnect trigger, and the
// periodic storage-loss probe. The host shell feeds it connectivity
// transitions via SetOnline; everything else it derives from store events
// and drain results.
type Watcher struct {
	store  store.Store
	engine *syncpkg.Engine
	opts   Options

	mu         sync.Mutex
	online     bool
	state      BannerState
	successGen int // invalidates stale auto-hide timers
	lossSticky store.LossReport

	listeners     map[int]StateListener
	lossListeners map[int]LossListener
	nextToken     int

	storeToken int
	isRunning  bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// New creates a Watcher. The watcher assumes online until told otherwise,
// matching how the shells report an initial connectivity snapshot on start.
func New(s store.Store, engine *syncpkg.Engine, opts Options) *Watcher {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 30 * time.Second
	}
	if opts.SuccessHold <= 0 {
		opts.SuccessHold = 4 * time.Second
	}

	return &Watcher{
		store:         s,
		engine:        engine,
		opts:          opts,
		online:        true,
		state:         StateHidden,
		listeners:     make(map[int]StateListener),
		lossListeners: make(map[int]LossListener),
	}
}

// Start launches the loss probe and subscribes to store changes.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.storeToken = w.store.Subscribe(w.onStoreEvent)
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.probeLoop(ctx, stopCh, doneCh)

	logging.Info("queue watcher started", map[string]interface{}{
		"probe_interval": w.opts.ProbeInterval.String(),
	})
}

// Stop halts the probe loop and unsubscribes from the store.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	stopCh := w.stopCh
	doneCh := w.doneCh
	storeToken := w.storeToken
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	w.store.Unsubscribe(storeToken)

	logging.Info("queue watcher stopped", nil)
}

// SetOnline records a connectivity transition from the host shell. On the
// offline→online edge with a nonempty queue, a drain is triggered
// automatically (once per transition).
func (w *Watcher) SetOnline(online bool) {
	w.mu.Lock()
	wasOnline := w.online
	w.online = online
	w.mu.Unlock()

	if wasOnline == online {
		return
	}

	logging.Info("connectivity changed", map[string]interface{}{
		"online": online,
	})

	pending, err := w.store.CountActive()
	if err != nil {
		logging.Error("failed to read pending count on connectivity change", err)
		return
	}

	if !online {
		if pending > 0 {
			w.setState(StateOfflinePending)
		} else {
			w.setState(StateHidden)
		}
		return
	}

	// Back online
	if pending > 0 && w.opts.SyncOnReconnect {
		go func() {
			if _, err := w.SyncNow(context.Background()); err != nil &&
				!apperrors.Is(err, apperrors.ErrSyncInProgress) {
				logging.Error("reconnect drain failed", err)
			}
		}()
		return
	}

	w.setState(StateHidden)
}

// Online reports the last known connectivity.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// SyncNow runs a drain and drives the banner through it. Manual retry from
// the banner and the reconnect trigger both land here.
func (w *Watcher) SyncNow(ctx context.Context) (*syncpkg.Result, error) {
	w.setState(StateSyncing)

	result, err := w.engine.Sync(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			// The in-flight drain owns the banner; leave it alone.
			return nil, err
		}
		w.setState(StateError)
		return nil, err
	}

	w.applyResult(result)
	return result, nil
}

// applyResult moves the banner to the state implied by a finished drain.
func (w *Watcher) applyResult(result *syncpkg.Result) {
	if len(result.Failed) > 0 || len(result.Conflicts) > 0 {
		if !w.Online() {
			// Failures while offline are expected; show the dedicated
			// offline state with retry disabled instead of an error.
			w.setState(StateOfflinePending)
			return
		}
		w.setState(StateError)
		return
	}

	if len(result.Success) > 0 {
		w.showSuccess()
		return
	}

	w.setState(StateHidden)
}

// showSuccess displays the transient success banner and schedules its
// auto-hide. A newer transition invalidates the pending hide.
func (w *Watcher) showSuccess() {
	w.mu.Lock()
	w.successGen++
	gen := w.successGen
	w.mu.Unlock()

	w.setState(StateSuccess)

	time.AfterFunc(w.opts.SuccessHold, func() {
		w.mu.Lock()
		stale := gen != w.successGen || w.state != StateSuccess
		w.mu.Unlock()
		if !stale {
			w.setState(StateHidden)
		}
	})
}

// State returns the current banner state.
func (w *Watcher) State() BannerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// setState transitions the banner and notifies listeners outside the lock.
func (w *Watcher) setState(next BannerState) {
	w.mu.Lock()
	if w.state == next {
		w.mu.Unlock()
		return
	}
	w.state = next
	snapshot := make([]StateListener, 0, len(w.listeners))
	for _, l := range w.listeners {
		snapshot = append(snapshot, l)
	}
	w.mu.Unlock()

	for _, l := range snapshot {
		l(next)
	}
}

// Subscribe registers a banner state listener and returns its token.
func (w *Watcher) Subscribe(l StateListener) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextToken++
	w.listeners[w.nextToken] = l
	return w.nextToken
}

// Unsubscribe removes a banner state listener.
func (w *Watcher) Unsubscribe(token int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.listeners, token)
}

// SubscribeLoss registers a listener for newly detected storage losses.
func (w *Watcher) SubscribeLoss(l LossListener) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextToken++
	w.lossListeners[w.nextToken] = l
	return w.nextToken
}

// UnsubscribeLoss removes a loss listener.
func (w *Watcher) UnsubscribeLoss(token int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.lossListeners, token)
}

// onStoreEvent keeps the offline banner live: enqueueing while offline must
// surface offline-pending without waiting for a connectivity edge.
func (w *Watcher) onStoreEvent(ev store.Event) {
	w.mu.Lock()
	offline := !w.online
	idle := w.state == StateHidden || w.state == StateOfflinePending
	w.mu.Unlock()

	if !offline || !idle {
		return
	}

	pending, err := w.store.CountActive()
	if err != nil {
		return
	}
	if pending > 0 {
		w.setState(StateOfflinePending)
	} else {
		w.setState(StateHidden)
	}
}

// probeLoop runs the periodic storage-loss probe. The channels belong to one
// Start/Stop cycle so overlapping lifecycles cannot cross wires.
func (w *Watcher) probeLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.Probe()
		}
	}
}

// Probe runs one loss-detection pass. Detected losses accumulate into a
// sticky report that survives until the driver acknowledges it: unlike a
// conflict, a lost action cannot be retried, the work must be redone.
func (w *Watcher) Probe() {
	report, err := w.store.DetectLoss()
	if err != nil {
		logging.Error("storage-loss probe failed", err)
		return
	}
	if !report.DataLost {
		return
	}

	w.mu.Lock()
	w.lossSticky.DataLost = true
	w.lossSticky.LostCount += report.LostCount
	w.lossSticky.LostIDs = append(w.lossSticky.LostIDs, report.LostIDs...)
	snapshot := make([]LossListener, 0, len(w.lossListeners))
	for _, l := range w.lossListeners {
		snapshot = append(snapshot, l)
	}
	w.mu.Unlock()

	// Each detected loss is pushed exactly once, so a loss that follows an
	// acknowledgment is never swallowed.
	for _, l := range snapshot {
		l(*report)
	}
}

// LossReport returns the sticky loss warning, if any.
func (w *Watcher) LossReport() store.LossReport {
	w.mu.Lock()
	defer w.mu.Unlock()

	report := w.lossSticky
	report.LostIDs = append([]string(nil), w.lossSticky.LostIDs...)
	return report
}

// AcknowledgeLoss clears the sticky loss warning after the driver has seen
// it and accepted that the lost work must be redone.
func (w *Watcher) AcknowledgeLoss() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lossSticky = store.LossReport{}
	logging.Info("storage loss acknowledged by user", nil)
}
