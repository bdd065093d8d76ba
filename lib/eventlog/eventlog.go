// Package eventlog names the out-of-scope event-log client contract
// (partition-scoped consumer pool with replay-from-timestamp)
// and implements the Event-Log Ingestor that drives it. No
// Kafka (or other streaming) client library exists anywhere in this
// module's retrieval pack, so Consumer/BrokerRegistry below are interfaces
// only; lib/eventlog/refimpl backs them with an in-process test double.
package eventlog

import (
	"context"
	"fmt"
)

// Op is the decoded operation a message carries.
type Op int

const (
	OpPut Op = iota
	OpDelete
	OpMerge
)

// Message is one event-log record.
type Message struct {
	Key               []byte
	Value             []byte
	Partition         int
	Offset            int64
	CreateTimestampMs int64
}

// Payload is the optional tagged decoding of Message.Value; when decoding is
// disabled the raw payload is treated as a Put.
type Payload struct {
	Op    Op
	Value []byte
}

// Consumer streams messages for a single partition starting from a given
// timestamp, then continues live.
type Consumer interface {
	// Replay delivers every message from fromTimestampMs up to "now" on ch,
	// then returns; it does not close ch. It must not block past "now":
	// callers that want continued delivery call Live afterward.
	Replay(ctx context.Context, fromTimestampMs int64, ch chan<- Message) error
	// Live delivers messages arriving after Replay's "now" cursor on ch until
	// ctx is done.
	Live(ctx context.Context, ch chan<- Message) error
	// Close releases the consumer's resources.
	Close() error
}

// BrokerWatcher is a shared, reference-counted handle to a broker-set's
// connection/metadata.
type BrokerWatcher interface {
	// NewConsumer creates a single-partition consumer for topic/partition.
	NewConsumer(topic string, partition int) (Consumer, error)
	// Release decrements the watcher's reference count.
	Release()
}

// BrokerRegistry hands out reference-counted BrokerWatchers keyed by a
// broker-set reference (e.g. a path to a broker-list file).
type BrokerRegistry interface {
	Acquire(brokerSetRef string) (BrokerWatcher, error)
}

// decodePayload decodes the tagged {op-code, value} wire format: the first
// byte is the op code, the remainder is the value. Messages
// produced with DecodePayload disabled skip this and are treated as Put.
func decodePayload(raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return Payload{}, fmt.Errorf("eventlog: empty payload")
	}
	op := Op(raw[0])
	switch op {
	case OpPut, OpDelete, OpMerge:
	default:
		return Payload{}, fmt.Errorf("eventlog: unknown op code %d", raw[0])
	}
	return Payload{Op: op, Value: raw[1:]}, nil
}
