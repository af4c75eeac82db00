package socket

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AckFunc receives the terminal result of an enqueued event: the server ack
// on success, or {ok:false, error:...} on terminal failure. It is invoked
// exactly once.
type AckFunc func(Ack)

// Emitter is the slice of Manager the queue needs. Tests substitute a fake.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) (Ack, error)
	Connected() bool
	OnConnect(id string, fn func())
}

type QueueConfig struct {
	AckTimeout time.Duration
	RetryBase  time.Duration
	RetryMax   time.Duration
	MaxRetries int
	StaleAfter time.Duration
	SweepEvery time.Duration
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		AckTimeout: 5 * time.Second,
		RetryBase:  500 * time.Millisecond,
		RetryMax:   8 * time.Second,
		MaxRetries: 5,
		StaleAfter: 30 * time.Second,
		SweepEvery: 5 * time.Second,
	}
}

type queuedEvent struct {
	eventName  string
	payload    any
	ack        AckFunc
	retryCount int
	enqueuedAt time.Time
	notBefore  time.Time
	terminal   bool
}

// Queue delivers acknowledged outbound events at least once, in enqueue
// order, surviving transient disconnects. Events that exhaust their retries
// or outlive the staleness window fail loudly through their ack callback.
type Queue struct {
	em  Emitter
	cfg QueueConfig
	log *zap.SugaredLogger

	mu       sync.Mutex
	items    []*queuedEvent
	draining bool

	closeOnce sync.Once
	done      chan struct{}
}

func NewQueue(em Emitter, cfg QueueConfig, log *zap.SugaredLogger) *Queue {
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 8 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 30 * time.Second
	}
	if cfg.SweepEvery == 0 {
		cfg.SweepEvery = 5 * time.Second
	}

	q := &Queue{
		em:   em,
		cfg:  cfg,
		log:  log,
		done: make(chan struct{}),
	}

	em.OnConnect("delivery-queue", q.Drain)
	go q.sweepLoop()

	return q
}

// Enqueue hands an event to the queue. When connected, one immediate
// delivery is attempted; a negative ack or timeout parks the event for the
// retry drain instead of dropping it. When disconnected, the event is parked
// straight away.
func (q *Queue) Enqueue(eventName string, payload any, ack AckFunc) {
	item := &queuedEvent{
		eventName:  eventName,
		payload:    payload,
		ack:        ack,
		enqueuedAt: time.Now(),
	}

	// Immediate delivery only when nothing is already parked: a newer event
	// must not overtake queued ones (e.g. clear then re-send out of order).
	if q.em.Connected() && q.Len() == 0 {
		a, err := q.attempt(item)
		if err == nil && a.OK {
			q.settle(item, a)
			return
		}
		// Failed immediate send counts as the first retry.
		item.retryCount = 1
		item.notBefore = time.Now().Add(q.retryDelay(item.retryCount))
		q.log.Debugw("immediate send failed, queued for retry",
			"event", eventName, "err", firstError(a, err))
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	if q.em.Connected() {
		q.Drain()
	}
}

// Send is the blocking form of Enqueue: it waits for the terminal result.
func (q *Queue) Send(ctx context.Context, eventName string, payload any) (Ack, error) {
	ch := make(chan Ack, 1)
	q.Enqueue(eventName, payload, func(a Ack) { ch <- a })

	select {
	case a := <-ch:
		return a, nil
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	}
}

// Len reports how many events are parked.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain starts a drain pass unless one is already running. It is registered
// as the manager's on-connect hook, so a connect firing mid-drain cannot
// start a second concurrent drain of the same queue.
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	go q.drainLoop()
}

func (q *Queue) drainLoop() {
	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for {
		select {
		case <-q.done:
			return
		default:
		}

		if !q.em.Connected() {
			return
		}

		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		head := q.items[0]
		wait := time.Until(head.notBefore)
		q.mu.Unlock()

		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-q.done:
				return
			}
			continue
		}

		a, err := q.attempt(head)
		if err == nil && a.OK {
			q.settle(head, a)
			continue
		}

		q.mu.Lock()
		if head.terminal {
			// Swept while the attempt was in flight.
			q.mu.Unlock()
			continue
		}
		head.retryCount++
		retries := head.retryCount
		if retries > q.cfg.MaxRetries {
			q.mu.Unlock()
			q.log.Warnw("event dropped after max retries",
				"event", head.eventName, "retries", retries-1)
			q.settle(head, Ack{OK: false, Error: AckErrMaxRetries})
			continue
		}
		head.notBefore = time.Now().Add(q.retryDelay(retries))
		q.mu.Unlock()

		q.log.Debugw("delivery failed, backing off",
			"event", head.eventName, "retry", retries, "err", firstError(a, err))
	}
}

// attempt sends one event and waits for its ack within the ack timeout.
func (q *Queue) attempt(item *queuedEvent) (Ack, error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.AckTimeout)
	defer cancel()
	return q.em.Emit(ctx, item.eventName, item.payload)
}

// settle marks the event terminal, removes it, and invokes its callback
// exactly once. Returns false if another path already settled it.
func (q *Queue) settle(item *queuedEvent, a Ack) bool {
	q.mu.Lock()
	if item.terminal {
		q.mu.Unlock()
		return false
	}
	item.terminal = true
	for i, it := range q.items {
		if it == item {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if item.ack != nil {
		item.ack(a)
	}
	return true
}

// retryDelay doubles the base per retry, capped.
func (q *Queue) retryDelay(retry int) time.Duration {
	d := q.cfg.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= q.cfg.RetryMax {
			return q.cfg.RetryMax
		}
	}
	if d > q.cfg.RetryMax {
		return q.cfg.RetryMax
	}
	return d
}

// sweepLoop evicts events older than the staleness window regardless of
// retry count. An abandoned operation (say, a chat message whose screen has
// long been left) must not grow the queue forever.
func (q *Queue) sweepLoop() {
	ticker := time.NewTicker(q.cfg.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			q.sweep(time.Now())
		}
	}
}

func (q *Queue) sweep(now time.Time) {
	cutoff := now.Add(-q.cfg.StaleAfter)

	q.mu.Lock()
	var stale []*queuedEvent
	for _, it := range q.items {
		if it.enqueuedAt.Before(cutoff) {
			stale = append(stale, it)
		}
	}
	q.mu.Unlock()

	for _, it := range stale {
		if q.settle(it, Ack{OK: false, Error: AckErrStale}) {
			q.log.Infow("stale event evicted",
				"event", it.eventName, "age", now.Sub(it.enqueuedAt))
		}
	}
}

func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

func firstError(a Ack, err error) string {
	if err != nil {
		return err.Error()
	}
	if a.Error != "" {
		return a.Error
	}
	return "nack"
}
