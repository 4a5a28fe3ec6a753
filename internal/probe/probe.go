package probe

// probe.go = the send-once / read-forever flow against a TCP endpoint.
// It connects, transmits a fixed binary payload in full, then prints every
// chunk the peer sends back until the peer closes the connection.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"speedprobe/internal/wire"
)

const (
	DefaultChunkSize   = 1024
	DefaultDialTimeout = 10 * time.Second

	// pollInterval bounds how long a blocked read can go without checking
	// for context cancellation.
	pollInterval = 500 * time.Millisecond
)

// Stats holds counters for a single probe run.
type Stats struct {
	ConnectedAt   time.Time
	Duration      time.Duration
	BytesSent     int
	Chunks        int
	BytesReceived int
}

// Probe sends one payload over one connection and prints the replies.
type Probe struct {
	Addr          string        // host:port of the target
	Payload       []byte        // bytes to transmit after connecting
	ChunkSize     int           // receive buffer size per read
	DialTimeout   time.Duration // connect timeout
	IdleTimeout   time.Duration // give up after this long without data; 0 blocks forever
	DecodeReplies bool          // pretty-print replies as protocol messages
	Out           io.Writer     // where received chunks are printed
	Logger        *slog.Logger

	runID string
	stats Stats
}

// New creates a probe for the given target with the default chunk size and
// timeouts.
func New(addr string, data []byte) *Probe {
	return &Probe{
		Addr:        addr,
		Payload:     data,
		ChunkSize:   DefaultChunkSize,
		DialTimeout: DefaultDialTimeout,
		Out:         os.Stdout,
		Logger:      slog.Default(),
		runID:       uuid.NewString(),
	}
}

// Stats returns the counters from the last run.
func (p *Probe) Stats() Stats {
	return p.stats
}

// Run executes the full probe flow: connect, send everything, then read and
// print chunks until the peer closes, an error occurs, or ctx is cancelled.
// A connection failure is returned before anything is sent.
func (p *Probe) Run(ctx context.Context) error {
	// AF_INET stream socket, same as the original capture tooling.
	conn, err := net.DialTimeout("tcp4", p.Addr, p.DialTimeout)
	if err != nil {
		return fmt.Errorf("connection to %s failed: %w", p.Addr, err)
	}
	defer conn.Close()

	p.stats = Stats{ConnectedAt: time.Now()}
	defer func() {
		p.stats.Duration = time.Since(p.stats.ConnectedAt)
	}()

	p.Logger.Info("probe_connected",
		"run_id", p.runID,
		"remote_addr", conn.RemoteAddr().String(),
		"payload_bytes", len(p.Payload),
	)

	if err := p.sendAll(conn); err != nil {
		return err
	}
	return p.receiveLoop(ctx, conn)
}

// sendAll writes the whole payload, looping over partial writes so the
// caller gets a single send-all-or-fail operation.
func (p *Probe) sendAll(conn net.Conn) error {
	sent := 0
	for sent < len(p.Payload) {
		n, err := conn.Write(p.Payload[sent:])
		sent += n
		if err != nil {
			return fmt.Errorf("send failed after %d of %d bytes: %w", sent, len(p.Payload), err)
		}
	}
	p.stats.BytesSent = sent
	p.Logger.Info("probe_payload_sent",
		"run_id", p.runID,
		"bytes", sent,
	)
	return nil
}

// receiveLoop reads up to ChunkSize bytes at a time and prints each chunk
// independently. A zero-length read (peer closed) ends the loop cleanly.
func (p *Probe) receiveLoop(ctx context.Context, conn net.Conn) error {
	buf := make([]byte, p.ChunkSize)
	var pending []byte // undecoded reply bytes, only used with DecodeReplies
	lastData := time.Now()

	for {
		// Short read deadlines keep the loop responsive to cancellation
		// without a second goroutine.
		if err := conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		n, err := conn.Read(buf)
		if n > 0 {
			lastData = time.Now()
			p.stats.Chunks++
			p.stats.BytesReceived += n
			if p.DecodeReplies {
				pending = p.printDecoded(append(pending, buf[:n]...))
			} else {
				fmt.Fprintf(p.Out, "%q\n", buf[:n])
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.Logger.Info("probe_peer_closed",
					"run_id", p.runID,
					"chunks", p.stats.Chunks,
					"bytes_received", p.stats.BytesReceived,
				)
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if ctx.Err() != nil {
					p.Logger.Info("probe_cancelled", "run_id", p.runID)
					return ctx.Err()
				}
				if p.IdleTimeout > 0 && time.Since(lastData) > p.IdleTimeout {
					return fmt.Errorf("no data from %s within %s", p.Addr, p.IdleTimeout)
				}
				continue
			}
			return fmt.Errorf("receive failed: %w", err)
		}
	}
}

// printDecoded prints every complete protocol message in buf and returns
// the unconsumed remainder, so messages split across chunks are reassembled.
func (p *Probe) printDecoded(buf []byte) []byte {
	for len(buf) > 0 {
		msg, n, err := wire.Decode(buf)
		if errors.Is(err, wire.ErrIncomplete) {
			break
		}
		if err != nil {
			// Not a protocol message; fall back to the raw form and drop
			// the buffer so we do not loop on the same bad byte.
			fmt.Fprintf(p.Out, "%q (undecodable: %v)\n", buf, err)
			return nil
		}
		fmt.Fprintf(p.Out, "%v\n", msg)
		buf = buf[n:]
	}
	return buf
}
