package refimpl

import (
	"context"
	"testing"

	"github.com/ValentinKolb/shardctl/lib/eventlog"
)

func TestReplayDeliversFedMessagesInOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Feed("brokers-1", eventlog.Message{Key: []byte("k2"), Partition: 0, Offset: 2, CreateTimestampMs: 20})
	reg.Feed("brokers-1", eventlog.Message{Key: []byte("k1"), Partition: 0, Offset: 1, CreateTimestampMs: 10})

	bw, err := reg.Acquire("brokers-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer bw.Release()

	consumer, err := bw.NewConsumer("topic", 0)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	defer consumer.Close()

	ch := make(chan eventlog.Message, 8)
	if err := consumer.Replay(context.Background(), 0, ch); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	close(ch)

	var got []eventlog.Message
	for m := range ch {
		got = append(got, m)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Offset != 1 || got[1].Offset != 2 {
		t.Errorf("messages not delivered in offset order: %+v", got)
	}
}

func TestReplaySkipsMessagesBeforeFromTimestamp(t *testing.T) {
	reg := NewRegistry()
	reg.Feed("brokers-1", eventlog.Message{Offset: 1, CreateTimestampMs: 5})
	reg.Feed("brokers-1", eventlog.Message{Offset: 2, CreateTimestampMs: 15})

	bw, _ := reg.Acquire("brokers-1")
	defer bw.Release()
	consumer, _ := bw.NewConsumer("topic", 0)
	defer consumer.Close()

	ch := make(chan eventlog.Message, 8)
	if err := consumer.Replay(context.Background(), 10, ch); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	close(ch)

	var got []eventlog.Message
	for m := range ch {
		got = append(got, m)
	}
	if len(got) != 1 || got[0].Offset != 2 {
		t.Fatalf("Replay(fromTimestampMs=10) = %+v, want only offset 2", got)
	}
}

func TestPartitionsAreIndependent(t *testing.T) {
	reg := NewRegistry()
	reg.Feed("brokers-1", eventlog.Message{Partition: 0, Offset: 1})
	reg.Feed("brokers-1", eventlog.Message{Partition: 1, Offset: 1})

	bw, _ := reg.Acquire("brokers-1")
	defer bw.Release()
	consumer, _ := bw.NewConsumer("topic", 0)
	defer consumer.Close()

	ch := make(chan eventlog.Message, 8)
	if err := consumer.Replay(context.Background(), 0, ch); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	close(ch)

	count := 0
	for range ch {
		count++
	}
	if count != 1 {
		t.Errorf("got %d messages for partition 0, want 1 (partition 1's message leaked in)", count)
	}
}

func TestLiveBlocksUntilContextDone(t *testing.T) {
	reg := NewRegistry()
	bw, _ := reg.Acquire("brokers-1")
	defer bw.Release()
	consumer, _ := bw.NewConsumer("topic", 0)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan eventlog.Message)
	if err := consumer.Live(ctx, ch); err == nil {
		t.Error("Live with an already-cancelled context: expected error, got nil")
	}
}
