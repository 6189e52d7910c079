// internal/radio/receiver.go

// Package radio is the boundary to the radio transport collaborator. The
// link layer authenticates and decrypts elsewhere; this receiver only
// carries already-trusted payloads into the gateway's control loop.
//
// Wire format of a datagram: one node id byte followed by the raw node
// payload.
package radio

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
)

// MaxPayload bounds a single datagram: id byte plus the largest node
// payload, with headroom for future classes.
const MaxPayload = 64

// Packet is one received node transmission.
type Packet struct {
	NodeID  uint8
	Payload []byte
}

// Receiver listens for node payloads on a UDP socket and hands them to
// the control loop through a buffered channel. When the loop falls behind
// packets are dropped and counted; radio delivery is best-effort anyway.
type Receiver struct {
	conn    *net.UDPConn
	out     chan Packet
	dropped atomic.Uint32
}

// Listen opens the radio ingress socket. buffer is the channel depth
// between the socket reader and the control loop.
func Listen(addr string, buffer int) (*Receiver, error) {
	if addr == "" {
		return nil, errors.New("radio: listen address required")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	return &Receiver{
		conn: conn,
		out:  make(chan Packet, buffer),
	}, nil
}

// Addr is the bound socket address, useful when listening on port 0.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Packets is the channel the control loop drains.
func (r *Receiver) Packets() <-chan Packet {
	return r.out
}

// Dropped reports how many packets were discarded because the loop fell
// behind.
func (r *Receiver) Dropped() uint32 {
	return r.dropped.Load()
}

// Run reads datagrams until ctx is cancelled. One goroutine.
func (r *Receiver) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	buf := make([]byte, MaxPayload)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			continue
		}
		if n < 2 {
			// id byte alone carries nothing
			continue
		}

		payload := make([]byte, n-1)
		copy(payload, buf[1:n])

		select {
		case r.out <- Packet{NodeID: buf[0], Payload: payload}:
		default:
			r.dropped.Add(1)
		}
	}
}

// Close releases the socket.
func (r *Receiver) Close() error {
	return r.conn.Close()
}
