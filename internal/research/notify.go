package research

import (
	"sync"

	"deepresearch/internal/async"
	"deepresearch/internal/logging"
)

// Event is one progress notification from a running pipeline.
type Event struct {
	Stage     string // "goal", "objectives", "round", "synthesis", "done"
	Objective Objective
	Index     int // objective index, -1 for run-level events
	Round     int // 0 for non-round events
	Message   string
}

// Notifier receives progress events. Delivery is best effort and never
// blocks the pipeline.
type Notifier interface {
	Notify(event Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

// NopNotifier discards all events.
func NopNotifier() Notifier { return nopNotifier{} }

// asyncNotifier delivers events on guarded background goroutines so a slow
// or panicking consumer cannot stall research.
type asyncNotifier struct {
	inner  Notifier
	logger logging.Logger
	wg     sync.WaitGroup
}

func newAsyncNotifier(inner Notifier, logger logging.Logger) *asyncNotifier {
	return &asyncNotifier{inner: inner, logger: logging.OrNop(logger)}
}

func (n *asyncNotifier) Notify(event Event) {
	async.GoWait(&n.wg, n.logger, "notify", func() {
		n.inner.Notify(event)
	})
}

// flush waits for pending deliveries, called once when a run ends.
func (n *asyncNotifier) flush() {
	n.wg.Wait()
}
