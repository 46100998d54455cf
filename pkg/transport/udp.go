package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const maxDatagram = 8192

// UDPTransport speaks JSON datagrams over a local network. A long-lived
// socket on the federation port answers incoming traffic; broadcasts and
// unicast requests use short-lived sockets with explicit read deadlines so
// the listen window is a testable duration, not a socket-timeout race.
type UDPTransport struct {
	port   int
	conn   *net.UDPConn
	logger *zap.Logger

	mu      sync.RWMutex
	handler Handler

	closeOnce sync.Once
	closed    chan struct{}
}

// NewUDP binds the federation port and starts answering datagrams.
func NewUDP(port int, logger *zap.Logger) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind udp port %d: %w", port, err)
	}

	t := &UDPTransport{
		port:   port,
		conn:   conn,
		logger: logger,
		closed: make(chan struct{}),
	}
	go t.serveLoop()
	return t, nil
}

func (t *UDPTransport) Addr() string {
	return t.conn.LocalAddr().String()
}

func (t *UDPTransport) SetHandler(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *UDPTransport) serveLoop() {
	buf := make([]byte, maxDatagram)
	for {
		n, remote, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
				t.logger.Warn("udp read failed", zap.Error(err))
				continue
			}
		}

		t.mu.RLock()
		h := t.handler
		t.mu.RUnlock()
		if h == nil {
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		go func(remote *net.UDPAddr, payload []byte) {
			if resp := h(remote.String(), payload); resp != nil {
				if _, err := t.conn.WriteToUDP(resp, remote); err != nil {
					t.logger.Warn("udp reply failed",
						zap.String("remote", remote.String()), zap.Error(err))
				}
			}
		}(remote, payload)
	}
}

// Broadcast sends the payload to the local broadcast address and collects
// replies until the window closes. The deadline expiring is the normal
// termination condition.
func (t *UDPTransport) Broadcast(ctx context.Context, payload []byte, window time.Duration) ([]Response, error) {
	sock, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to open broadcast socket: %w", err)
	}
	defer sock.Close()

	dest := &net.UDPAddr{IP: net.IPv4bcast, Port: t.port}
	if _, err := sock.WriteToUDP(payload, dest); err != nil {
		return nil, fmt.Errorf("failed to send broadcast: %w", err)
	}

	deadline := time.Now().Add(window)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := sock.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set listen window: %w", err)
	}

	var responses []Response
	buf := make([]byte, maxDatagram)
	for {
		n, remote, err := sock.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return responses, nil
			}
			return responses, fmt.Errorf("broadcast listen failed: %w", err)
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		responses = append(responses, Response{From: remote.String(), Payload: payload})
	}
}

// Send delivers the payload to one peer and waits up to timeout for a
// single reply datagram.
func (t *UDPTransport) Send(ctx context.Context, addr string, payload []byte, timeout time.Duration) ([]byte, error) {
	dest, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("invalid peer address %s: %w", addr, err)
	}

	sock, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to open request socket: %w", err)
	}
	defer sock.Close()

	if _, err := sock.WriteToUDP(payload, dest); err != nil {
		return nil, fmt.Errorf("failed to send to %s: %w", addr, err)
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := sock.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set request deadline: %w", err)
	}

	buf := make([]byte, maxDatagram)
	n, _, err := sock.ReadFromUDP(buf)
	if err != nil {
		return nil, fmt.Errorf("no reply from %s: %w", addr, err)
	}
	resp := make([]byte, n)
	copy(resp, buf[:n])
	return resp, nil
}

func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}
