// Package refimpl is an in-process reference implementation of
// lib/eventlog's consumer contracts. It exists only so this repo's own
// tests can drive the Event-Log Ingestor's replay/live/checkpoint logic
// without a real broker.
package refimpl

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/shardctl/lib/eventlog"
)

// livePollInterval is how often Live rechecks the feed for messages Fed
// after Replay returned.
const livePollInterval = 5 * time.Millisecond

// Registry is an in-memory BrokerRegistry: each broker-set reference maps to
// a Topic feed that tests populate directly via Feed.
type Registry struct {
	mu     sync.Mutex
	topics map[string]*topicFeed
}

// NewRegistry creates an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{topics: map[string]*topicFeed{}}
}

type topicFeed struct {
	mu       sync.Mutex
	messages map[int][]eventlog.Message // partition -> ordered messages
	refcount int
}

// Feed appends msg to the given broker-set reference's partition feed, for
// tests to set up fixtures before starting an Ingestor.
func (r *Registry) Feed(brokerSetRef string, msg eventlog.Message) {
	r.mu.Lock()
	f, ok := r.topics[brokerSetRef]
	if !ok {
		f = &topicFeed{messages: map[int][]eventlog.Message{}}
		r.topics[brokerSetRef] = f
	}
	r.mu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[msg.Partition] = append(f.messages[msg.Partition], msg)
}

// Acquire implements eventlog.BrokerRegistry.
func (r *Registry) Acquire(brokerSetRef string) (eventlog.BrokerWatcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.topics[brokerSetRef]
	if !ok {
		f = &topicFeed{messages: map[int][]eventlog.Message{}}
		r.topics[brokerSetRef] = f
	}
	f.refcount++
	return &watcher{feed: f}, nil
}

type watcher struct {
	feed *topicFeed
}

func (w *watcher) NewConsumer(topic string, partition int) (eventlog.Consumer, error) {
	return &consumer{feed: w.feed, partition: partition}, nil
}

func (w *watcher) Release() {
	w.feed.mu.Lock()
	w.feed.refcount--
	w.feed.mu.Unlock()
}

// consumer replays whatever messages Feed has already queued for its
// partition as of the Replay call, then in Live polls the feed for messages
// Fed afterward (by tests simulating live production) until ctx is done.
type consumer struct {
	feed      *topicFeed
	partition int

	// maxOffsetSeen is the highest offset already delivered, so Live only
	// forwards messages Fed after Replay's cursor.
	maxOffsetSeen int64
	sawAny        bool
}

func (c *consumer) Replay(ctx context.Context, fromTimestampMs int64, ch chan<- eventlog.Message) error {
	c.feed.mu.Lock()
	msgs := append([]eventlog.Message(nil), c.feed.messages[c.partition]...)
	c.feed.mu.Unlock()

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Offset < msgs[j].Offset })
	for _, m := range msgs {
		if m.CreateTimestampMs < fromTimestampMs {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- m:
			if !c.sawAny || m.Offset > c.maxOffsetSeen {
				c.maxOffsetSeen = m.Offset
				c.sawAny = true
			}
		}
	}
	return nil
}

// Live polls the feed for messages with an offset past Replay's cursor,
// delivering them in order, until ctx is done.
func (c *consumer) Live(ctx context.Context, ch chan<- eventlog.Message) error {
	ticker := time.NewTicker(livePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.feed.mu.Lock()
			msgs := append([]eventlog.Message(nil), c.feed.messages[c.partition]...)
			c.feed.mu.Unlock()

			sort.Slice(msgs, func(i, j int) bool { return msgs[i].Offset < msgs[j].Offset })
			for _, m := range msgs {
				if c.sawAny && m.Offset <= c.maxOffsetSeen {
					continue
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ch <- m:
					c.maxOffsetSeen = m.Offset
					c.sawAny = true
				}
			}
		}
	}
}

func (c *consumer) Close() error {
	return nil
}
