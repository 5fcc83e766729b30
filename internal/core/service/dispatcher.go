package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

const (
	defaultDeliveryTimeout = 30 * time.Second
	defaultDispatchQueue   = 64
)

type notificationKey struct {
	key   domain.ResourceKey
	state domain.ResourceState
}

type subscription struct {
	filter   domain.EventFilter
	notifier ports.Notifier
}

type delivery struct {
	event    domain.TransitionEvent
	notifier ports.Notifier
}

// NotificationDispatcher turns transition events into external side effects,
// at most once per (key, target state). Deliveries run on background workers
// and their failures are only logged.
type NotificationDispatcher struct {
	logger          ports.Logger
	deliveryTimeout time.Duration

	mu       sync.Mutex
	notified map[notificationKey]struct{}
	subs     []subscription

	// queueMu guards closed and the close of queue against concurrent sends.
	queueMu sync.RWMutex
	closed  bool
	queue   chan delivery
	wg      sync.WaitGroup
}

type DispatcherOption func(*dispatcherSettings)

type dispatcherSettings struct {
	workers         int
	queueSize       int
	deliveryTimeout time.Duration
}

// WithWorkers sets the number of delivery workers. With one worker (the
// default) notifications are delivered in the order they were accepted.
func WithWorkers(n int) DispatcherOption {
	return func(s *dispatcherSettings) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(s *dispatcherSettings) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

func WithDeliveryTimeout(d time.Duration) DispatcherOption {
	return func(s *dispatcherSettings) {
		if d > 0 {
			s.deliveryTimeout = d
		}
	}
}

func NewNotificationDispatcher(logger ports.Logger, opts ...DispatcherOption) *NotificationDispatcher {
	settings := dispatcherSettings{workers: 1, queueSize: defaultDispatchQueue, deliveryTimeout: defaultDeliveryTimeout}
	for _, opt := range opts {
		opt(&settings)
	}

	d := &NotificationDispatcher{
		logger:          logger,
		deliveryTimeout: settings.deliveryTimeout,
		notified:        make(map[notificationKey]struct{}),
		queue:           make(chan delivery, settings.queueSize),
	}
	for i := 0; i < settings.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// Subscribe routes events matching filter to notifier.
func (d *NotificationDispatcher) Subscribe(filter domain.EventFilter, notifier ports.Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, subscription{filter: filter, notifier: notifier})
}

// OnTransition implements ports.TransitionListener. It never blocks on
// delivery.
func (d *NotificationDispatcher) OnTransition(ctx context.Context, event domain.TransitionEvent) {
	nk := notificationKey{key: event.Key, state: event.To}

	d.mu.Lock()
	if _, seen := d.notified[nk]; seen {
		d.mu.Unlock()
		d.logger.Debugf(ctx, "Notification for %s in %s already sent, skipping", event.Key, event.To)
		return
	}
	var targets []ports.Notifier
	for _, sub := range d.subs {
		if sub.filter.Matches(event) {
			targets = append(targets, sub.notifier)
		}
	}
	if len(targets) > 0 {
		d.notified[nk] = struct{}{}
	}
	d.mu.Unlock()

	for _, n := range targets {
		d.enqueue(ctx, delivery{event: event, notifier: n})
	}
}

// Forget clears the dedupe record of key so a new lifecycle can notify again.
func (d *NotificationDispatcher) Forget(key domain.ResourceKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for nk := range d.notified {
		if nk.key == key {
			delete(d.notified, nk)
		}
	}
}

// Close stops accepting deliveries and waits for queued ones to finish.
func (d *NotificationDispatcher) Close() {
	d.queueMu.Lock()
	if d.closed {
		d.queueMu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.queueMu.Unlock()

	d.wg.Wait()
}

func (d *NotificationDispatcher) enqueue(ctx context.Context, w delivery) {
	d.queueMu.RLock()
	defer d.queueMu.RUnlock()

	if d.closed {
		d.logger.Warnf(ctx, "Dispatcher closed, dropping %s notification for %s", w.notifier.Name(), w.event)
		return
	}
	select {
	case d.queue <- w:
	default:
		d.logger.Warnf(ctx, "Notification queue full, dropping %s notification for %s", w.notifier.Name(), w.event)
	}
}

func (d *NotificationDispatcher) worker(id int) {
	defer d.wg.Done()
	for w := range d.queue {
		d.deliver(id, w)
	}
}

func (d *NotificationDispatcher) deliver(id int, w delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), d.deliveryTimeout)
	defer cancel()

	log := d.logger.WithFields(map[string]any{
		"notifier":     w.notifier.Name(),
		"resource_key": w.event.Key.String(),
		"worker":       id,
	})

	defer func() {
		if r := recover(); r != nil {
			log.Errorf(ctx, errors.New(errors.CodeNotificationError, fmt.Sprintf("panic: %v", r)), "Notifier panicked")
		}
	}()

	if err := w.notifier.Notify(ctx, w.event); err != nil {
		log.Errorf(ctx, errors.Wrap(err, errors.CodeNotificationError, "notification failed"),
			"Failed to deliver notification for transition to %s", w.event.To)
		return
	}
	log.Infof(ctx, "Delivered notification for transition to %s", w.event.To)
}
