package permit

import (
	"context"
	"sync"
	"time"

	"github.com/oarkflow/permit/logger"
)

// ============================================================================
// CHANGE NOTIFICATION
// ============================================================================

// ChangeKind classifies what mutated.
type ChangeKind string

const (
	ChangePolicy     ChangeKind = "policy"
	ChangeDelegation ChangeKind = "delegation"
)

// ChangeEvent describes one mutation: a rule saved or deleted, a delegation
// granted or revoked. ID is the rule or delegation ID.
type ChangeEvent struct {
	Kind ChangeKind
	ID   string
}

// ChangeListener receives change events from a ChangeNotifier. Listener
// errors are logged, never propagated to the writer that caused the event.
type ChangeListener interface {
	OnChange(ctx context.Context, event ChangeEvent) error
}

type ChangeListenerFunc func(ctx context.Context, event ChangeEvent) error

func (f ChangeListenerFunc) OnChange(ctx context.Context, event ChangeEvent) error {
	return f(ctx, event)
}

// ChangeNotifier fans policy and delegation mutations out to listeners, off
// the writer's goroutine. Hosts use it to keep decision caches honest: wire
// InvalidateOnChange and revocations take effect without waiting out the
// cache TTL. It can also run the delegation cleanup sweep on a schedule.
//
// Notify never blocks; events are dropped when the buffer is full, so
// listeners must treat events as hints, not as a reliable log.
type ChangeNotifier struct {
	notifyCh      chan ChangeEvent
	stopCh        chan struct{}
	listeners     map[ChangeKind][]ChangeListener
	mu            sync.RWMutex
	started       bool
	wg            sync.WaitGroup
	logger        logger.Logger
	sweepInterval time.Duration
	sweeper       *DelegationManager
}

type ChangeNotifierOption func(*ChangeNotifier)

// WithNotifierLogger installs a structured logger on the notifier.
func WithNotifierLogger(l logger.Logger) ChangeNotifierOption {
	return func(n *ChangeNotifier) { n.logger = l }
}

// WithCleanupSweep makes the notifier run the manager's Cleanup on the given
// interval while started.
func WithCleanupSweep(manager *DelegationManager, interval time.Duration) ChangeNotifierOption {
	return func(n *ChangeNotifier) {
		if manager != nil && interval > 0 {
			n.sweeper = manager
			n.sweepInterval = interval
		}
	}
}

func NewChangeNotifier(opts ...ChangeNotifierOption) *ChangeNotifier {
	n := &ChangeNotifier{
		notifyCh:  make(chan ChangeEvent, 1024),
		stopCh:    make(chan struct{}),
		listeners: make(map[ChangeKind][]ChangeListener),
		logger:    logger.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start launches the dispatch worker. Calling Start twice is a no-op.
func (n *ChangeNotifier) Start(ctx context.Context) {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return
	}
	n.started = true
	n.mu.Unlock()

	var ticker *time.Ticker
	var tick <-chan time.Time
	if n.sweeper != nil {
		ticker = time.NewTicker(n.sweepInterval)
		tick = ticker.C
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-n.stopCh:
				return
			case event := <-n.notifyCh:
				n.dispatch(ctx, event)
			case <-tick:
				if removed, err := n.sweeper.Cleanup(ctx); err != nil {
					n.logger.Error("delegation sweep failed", "error", err.Error())
				} else if removed > 0 {
					n.logger.Debug("delegation sweep", "removed", removed)
				}
			}
		}
	}()
}

// Stop shuts the worker down and waits for it, bounded by ctx.
func (n *ChangeNotifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return nil
	}
	n.started = false
	n.mu.Unlock()

	close(n.stopCh)
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Notify enqueues an event without blocking the caller.
func (n *ChangeNotifier) Notify(event ChangeEvent) {
	select {
	case n.notifyCh <- event:
	default:
	}
}

func (n *ChangeNotifier) NotifyPolicyChange(ruleID string) {
	n.Notify(ChangeEvent{Kind: ChangePolicy, ID: ruleID})
}

func (n *ChangeNotifier) NotifyDelegationChange(delegationID string) {
	n.Notify(ChangeEvent{Kind: ChangeDelegation, ID: delegationID})
}

// Subscribe registers a listener for one kind; an empty kind subscribes to
// every event.
func (n *ChangeNotifier) Subscribe(kind ChangeKind, l ChangeListener) {
	if l == nil {
		return
	}
	if kind == "" {
		kind = "*"
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[kind] = append(n.listeners[kind], l)
}

func (n *ChangeNotifier) dispatch(ctx context.Context, event ChangeEvent) {
	n.mu.RLock()
	targets := make([]ChangeListener, 0, len(n.listeners[event.Kind])+len(n.listeners["*"]))
	targets = append(targets, n.listeners[event.Kind]...)
	targets = append(targets, n.listeners["*"]...)
	n.mu.RUnlock()

	for _, l := range targets {
		if err := l.OnChange(ctx, event); err != nil {
			n.logger.Error("change listener failed",
				"kind", string(event.Kind), "id", event.ID, "error", err.Error())
		}
	}
}

// InvalidateOnChange subscribes the cached evaluator's Invalidate to every
// change event.
func InvalidateOnChange(n *ChangeNotifier, cached *CachedPolicyEvaluator) {
	n.Subscribe("", ChangeListenerFunc(func(ctx context.Context, event ChangeEvent) error {
		cached.Invalidate()
		return nil
	}))
}
