package transport

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Bus connects in-process transports by address. It stands in for a real
// network during local simulation and in tests, where several isolated
// nodes run inside one process.
type Bus struct {
	mu    sync.RWMutex
	nodes map[string]*InprocTransport
}

func NewBus() *Bus {
	return &Bus{nodes: make(map[string]*InprocTransport)}
}

// Attach creates a transport reachable at addr on this bus.
func (b *Bus) Attach(addr string) *InprocTransport {
	t := &InprocTransport{bus: b, addr: addr}
	b.mu.Lock()
	b.nodes[addr] = t
	b.mu.Unlock()
	return t
}

func (b *Bus) detach(addr string) {
	b.mu.Lock()
	delete(b.nodes, addr)
	b.mu.Unlock()
}

func (b *Bus) others(addr string) []*InprocTransport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*InprocTransport, 0, len(b.nodes))
	for a, t := range b.nodes {
		if a != addr {
			out = append(out, t)
		}
	}
	return out
}

func (b *Bus) lookup(addr string) (*InprocTransport, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.nodes[addr]
	return t, ok
}

// InprocTransport is a Transport whose wire is a method call on the bus.
type InprocTransport struct {
	bus  *Bus
	addr string

	mu      sync.RWMutex
	handler Handler
	closed  bool
}

func (t *InprocTransport) Addr() string { return t.addr }

func (t *InprocTransport) SetHandler(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *InprocTransport) deliver(from string, payload []byte) []byte {
	t.mu.RLock()
	h := t.handler
	closed := t.closed
	t.mu.RUnlock()
	if closed || h == nil {
		return nil
	}
	return h(from, payload)
}

// Broadcast fans the payload out to every other transport on the bus and
// gathers replies until all responders finish or the window closes.
func (t *InprocTransport) Broadcast(ctx context.Context, payload []byte, window time.Duration) ([]Response, error) {
	peers := t.bus.others(t.addr)
	replies := make(chan Response, len(peers))

	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(p *InprocTransport) {
			defer wg.Done()
			if resp := p.deliver(t.addr, payload); resp != nil {
				replies <- Response{From: p.addr, Payload: resp}
			}
		}(peer)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
	}

	var out []Response
	for {
		select {
		case r := <-replies:
			out = append(out, r)
		default:
			return out, nil
		}
	}
}

// Send delivers the payload to the transport registered at addr.
func (t *InprocTransport) Send(ctx context.Context, addr string, payload []byte, timeout time.Duration) ([]byte, error) {
	peer, ok := t.bus.lookup(addr)
	if !ok {
		return nil, fmt.Errorf("no transport at %s", addr)
	}

	type result struct{ resp []byte }
	ch := make(chan result, 1)
	go func() {
		ch <- result{peer.deliver(t.addr, payload)}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.resp == nil {
			return nil, nil
		}
		return r.resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("request to %s timed out after %s", addr, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *InprocTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.bus.detach(t.addr)
	return nil
}
