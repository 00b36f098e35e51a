// SPDX-License-Identifier: AGPL-3.0-or-later

package hostlink

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/adrcs/ip400/internal/queue"
)

// readTimeout bounds each UDP read so the worker can observe ctx
// cancellation between reads.
const readTimeout = time.Second

// Relay carries host-link blocks over UDP. A background goroutine reads
// inbound blocks and enqueues them; the cooperative exchange loop drains
// that queue and writes outbound blocks directly, keeping the queue
// single-producer/single-consumer.
type Relay struct {
	conn    *net.UDPConn
	remote  *net.UDPAddr
	Inbound *queue.Queue[*Block]
	log     *slog.Logger
}

// NewRelay binds a UDP socket on localAddr and targets remoteAddr for sends.
func NewRelay(localAddr, remoteAddr string, log *slog.Logger) (*Relay, error) {
	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, err
	}
	remote, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, err
	}
	return &Relay{
		conn:    conn,
		remote:  remote,
		Inbound: queue.New[*Block](0),
		log:     log,
	}, nil
}

// Close releases the socket.
func (r *Relay) Close() error {
	return r.conn.Close()
}

// Send writes one block to the configured remote.
func (r *Relay) Send(b *Block) error {
	_, err := r.conn.WriteToUDP(b.Encode(), r.remote)
	return err
}

// Run reads inbound blocks until ctx is cancelled, discarding any datagram
// that fails to decode (mismatched eye or out-of-range status) without
// touching any reassembly state.
func (r *Relay) Run(ctx context.Context) error {
	buf := make([]byte, BlockSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := r.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		b, err := DecodeBlock(buf[:n])
		if err != nil {
			r.log.Warn("discarding malformed host-link block", slog.String("error", err.Error()))
			continue
		}
		r.Inbound.Push(b)
	}
}
