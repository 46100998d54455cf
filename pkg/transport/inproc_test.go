package transport

import (
	"context"
	"testing"
	"time"
)

func TestBus_BroadcastCollectsReplies(t *testing.T) {
	bus := NewBus()
	seeker := bus.Attach("node-a")
	defer seeker.Close()

	for _, addr := range []string{"node-b", "node-c"} {
		peer := bus.Attach(addr)
		defer peer.Close()
		peer.SetHandler(func(from string, payload []byte) []byte {
			return append([]byte("ack:"), payload...)
		})
	}

	// A peer with no handler stays silent.
	silent := bus.Attach("node-d")
	defer silent.Close()

	responses, err := seeker.Broadcast(context.Background(), []byte("hello"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 2 {
		t.Fatalf("Broadcast collected %d replies, want 2", len(responses))
	}
	for _, r := range responses {
		if string(r.Payload) != "ack:hello" {
			t.Errorf("reply payload = %q", r.Payload)
		}
	}
}

func TestBus_BroadcastNoPeers(t *testing.T) {
	bus := NewBus()
	alone := bus.Attach("node-a")
	defer alone.Close()

	start := time.Now()
	responses, err := alone.Broadcast(context.Background(), []byte("anyone"), 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 0 {
		t.Errorf("got %d replies from an empty bus", len(responses))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("broadcast took %v, want prompt return with no peers", elapsed)
	}
}

func TestBus_SendRoundtrip(t *testing.T) {
	bus := NewBus()
	a := bus.Attach("node-a")
	b := bus.Attach("node-b")
	defer a.Close()
	defer b.Close()

	b.SetHandler(func(from string, payload []byte) []byte {
		if from != "node-a" {
			t.Errorf("from = %q, want node-a", from)
		}
		return []byte("pong")
	})

	resp, err := a.Send(context.Background(), "node-b", []byte("ping"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "pong" {
		t.Errorf("resp = %q, want pong", resp)
	}
}

func TestBus_SendUnknownAddress(t *testing.T) {
	bus := NewBus()
	a := bus.Attach("node-a")
	defer a.Close()

	if _, err := a.Send(context.Background(), "node-missing", []byte("ping"), time.Second); err == nil {
		t.Error("expected error sending to unknown address")
	}
}

func TestBus_SendTimeout(t *testing.T) {
	bus := NewBus()
	a := bus.Attach("node-a")
	b := bus.Attach("node-b")
	defer a.Close()
	defer b.Close()

	b.SetHandler(func(from string, payload []byte) []byte {
		time.Sleep(500 * time.Millisecond)
		return []byte("late")
	})

	if _, err := a.Send(context.Background(), "node-b", []byte("ping"), 50*time.Millisecond); err == nil {
		t.Error("expected timeout error from slow responder")
	}
}

func TestBus_ClosedTransportSilent(t *testing.T) {
	bus := NewBus()
	a := bus.Attach("node-a")
	b := bus.Attach("node-b")
	defer a.Close()

	b.SetHandler(func(from string, payload []byte) []byte { return []byte("alive") })
	b.Close()

	responses, err := a.Broadcast(context.Background(), []byte("hello"), 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 0 {
		t.Errorf("closed transport replied: %v", responses)
	}
}
