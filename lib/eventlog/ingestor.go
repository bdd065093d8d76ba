package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/shardctl/internal/logging"
	"github.com/ValentinKolb/shardctl/lib/dbname"
	"github.com/ValentinKolb/shardctl/lib/engine"
	"github.com/ValentinKolb/shardctl/lib/metadata"
	"github.com/ValentinKolb/shardctl/lib/registry"
	"github.com/VictoriaMetrics/metrics"
)

var log = logging.New("eventlog")

func nowMs() int64 { return time.Now().UnixMilli() }

// StartRequest is one start-message-ingestion call.
type StartRequest struct {
	DB                   string
	Topic                string
	BrokerSetRef         string
	DesiredReplayTimestampMs int64
	// DecodePayload enables the tagged {op, value?} decoding of message
	// values; when false the raw payload is treated as Put.
	DecodePayload bool
}

// watcher is the per-db running ingestion task.
type watcher struct {
	db       string
	stop     chan struct{}
	done     chan struct{}
	consumer Consumer
	bw       BrokerWatcher

	// applied counts messages applied across both the replay and live
	// phases, so the "every N messages" checkpoint cadence is continuous
	// across that transition rather than restarting at the live boundary.
	applied int
}

// Ingestor implements the Event-Log Ingestor.
type Ingestor struct {
	reg    *registry.Registry
	locks  *registry.LockMap
	meta   *metadata.Store
	broker BrokerRegistry

	checkpointInterval int

	mu       sync.Mutex
	watchers map[string]*watcher
}

// New creates an Ingestor. checkpointInterval is the default N in "every N
// messages, write a metadata checkpoint record"; callers that pass <= 0 get
// 1000 as the default.
func New(reg *registry.Registry, locks *registry.LockMap, meta *metadata.Store, broker BrokerRegistry, checkpointInterval int) *Ingestor {
	if checkpointInterval <= 0 {
		checkpointInterval = 1000
	}
	return &Ingestor{reg: reg, locks: locks, meta: meta, broker: broker, checkpointInterval: checkpointInterval, watchers: map[string]*watcher{}}
}

// IsRunning implements lib/ingest.WatcherChecker.
func (i *Ingestor) IsRunning(db string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.watchers[db]
	return ok
}

// ErrAlreadyRunning is returned by Start when a watcher already exists for the db.
var ErrAlreadyRunning = fmt.Errorf("eventlog: ingestion already running for this database")

// ErrNotRunning is returned by Stop when no watcher exists for the db.
var ErrNotRunning = fmt.Errorf("eventlog: ingestion not running for this database")

// Start implements start protocol. It blocks until replay
// reaches "now" (step 6), then returns with live consumption continuing in
// the background.
func (i *Ingestor) Start(ctx context.Context, req StartRequest) error {
	var retErr error
	_ = i.locks.WithLock(req.DB, func() error {
		h, err := i.reg.Get(req.DB)
		if err != nil {
			retErr = fmt.Errorf("start-message-ingestion: %s: %w", req.DB, err)
			return nil
		}

		i.mu.Lock()
		if _, exists := i.watchers[req.DB]; exists {
			i.mu.Unlock()
			retErr = ErrAlreadyRunning
			return nil
		}
		i.mu.Unlock()

		rec, err := i.meta.Get(req.DB)
		if err != nil && err != metadata.ErrNotFound {
			retErr = fmt.Errorf("start-message-ingestion: %s: read metadata: %w", req.DB, err)
			return nil
		}
		effective := req.DesiredReplayTimestampMs
		if rec.LastEventTimestampMs > effective {
			effective = rec.LastEventTimestampMs
		}

		name, err := dbname.Parse(req.DB)
		if err != nil {
			retErr = fmt.Errorf("start-message-ingestion: %w", err)
			return nil
		}

		bw, err := i.broker.Acquire(req.BrokerSetRef)
		if err != nil {
			retErr = fmt.Errorf("start-message-ingestion: %s: acquire broker watcher: %w", req.DB, err)
			return nil
		}
		consumer, err := bw.NewConsumer(req.Topic, int(name.Shard))
		if err != nil {
			bw.Release()
			retErr = fmt.Errorf("start-message-ingestion: %s: new consumer: %w", req.DB, err)
			return nil
		}

		w := &watcher{db: req.DB, stop: make(chan struct{}), done: make(chan struct{}), consumer: consumer, bw: bw}
		i.mu.Lock()
		i.watchers[req.DB] = w
		i.mu.Unlock()

		if err := i.replayThenLive(ctx, w, h.Engine, effective, req); err != nil {
			i.mu.Lock()
			delete(i.watchers, req.DB)
			i.mu.Unlock()
			consumer.Close()
			bw.Release()
			retErr = fmt.Errorf("start-message-ingestion: %s: %w", req.DB, err)
			return nil
		}
		log.Infof("started event-log ingestion for %s at effective timestamp %d", req.DB, effective)
		return nil
	})
	return retErr
}

// replayThenLive blocks applying replay messages, then spawns the live loop
// in the background and returns.
func (i *Ingestor) replayThenLive(ctx context.Context, w *watcher, eng engine.Engine, fromTimestampMs int64, req StartRequest) error {
	ch := make(chan Message, 256)
	replayErrCh := make(chan error, 1)
	go func() {
		replayErrCh <- w.consumer.Replay(ctx, fromTimestampMs, ch)
		close(ch)
	}()

	for m := range ch {
		i.applyMessage(w.db, eng, m, req.DecodePayload, false, &w.applied)
	}
	if err := <-replayErrCh; err != nil {
		return err
	}

	go i.liveLoop(ctx, w, eng, req)
	return nil
}

func (i *Ingestor) liveLoop(ctx context.Context, w *watcher, eng engine.Engine, req StartRequest) {
	defer close(w.done)
	ch := make(chan Message, 256)
	liveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		_ = w.consumer.Live(liveCtx, ch)
		close(ch)
	}()

	for {
		select {
		case <-w.stop:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			i.applyMessage(w.db, eng, m, req.DecodePayload, true, &w.applied)
		}
	}
}

func (i *Ingestor) applyMessage(db string, eng engine.Engine, m Message, decode bool, isLive bool, applied *int) {
	op := OpPut
	value := m.Value
	if decode {
		p, err := decodePayload(m.Value)
		if err != nil {
			metrics.GetOrCreateCounter(fmt.Sprintf(`shardctl_eventlog_apply_errors_total{db=%q}`, db)).Inc()
			log.Warningf("%s: failed to decode payload at offset %d: %v", db, m.Offset, err)
			return
		}
		op, value = p.Op, p.Value
	}

	var writeOp engine.WriteOp
	switch op {
	case OpDelete:
		writeOp = engine.OpDelete
	case OpMerge:
		writeOp = engine.OpMerge
	default:
		writeOp = engine.OpPut
	}
	err := eng.Apply(context.Background(), m.Key, value, writeOp)

	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`shardctl_eventlog_apply_errors_total{db=%q}`, db)).Inc()
		log.Warningf("%s: apply error at offset %d: %v", db, m.Offset, err)
		return
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`shardctl_eventlog_apply_success_total{db=%q}`, db)).Inc()
	if isLive {
		latencyMs := nowMs() - m.CreateTimestampMs
		metrics.GetOrCreateHistogram(fmt.Sprintf(`shardctl_eventlog_latency_ms{db=%q}`, db)).Update(float64(latencyMs))
	}

	*applied++
	if *applied%i.checkpointInterval == 0 {
		if err := i.meta.PutEventTimestamp(db, m.CreateTimestampMs); err != nil {
			log.Warningf("%s: checkpoint failed at offset %d: %v", db, m.Offset, err)
		}
	}
}

// Stop implements stop protocol.
func (i *Ingestor) Stop(db string) error {
	var retErr error
	_ = i.locks.WithLock(db, func() error {
		i.mu.Lock()
		w, ok := i.watchers[db]
		if !ok {
			i.mu.Unlock()
			retErr = ErrNotRunning
			return nil
		}
		delete(i.watchers, db)
		i.mu.Unlock()

		close(w.stop)
		<-w.done
		w.consumer.Close()
		w.bw.Release()
		log.Infof("stopped event-log ingestion for %s", db)
		return nil
	})
	return retErr
}
