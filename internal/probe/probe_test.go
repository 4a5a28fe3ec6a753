package probe

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedprobe/internal/payload"
	"speedprobe/internal/wire"
)

// startServer runs handler for a single connection on a loopback listener
// and returns the listener address.
func startServer(t *testing.T, handler func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()
	return ln.Addr().String()
}

func TestRun_EchoServer(t *testing.T) {
	data := payload.MustDecode(payload.DefaultHex)

	addr := startServer(t, func(conn net.Conn) {
		got := make([]byte, len(data))
		if _, err := io.ReadFull(conn, got); err != nil {
			return
		}
		// Echo back in two chunks to exercise chunked receiving.
		conn.Write(got[:10])
		time.Sleep(50 * time.Millisecond)
		conn.Write(got[10:])
	})

	var out bytes.Buffer
	p := New(addr, data)
	p.Out = &out

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))

	stats := p.Stats()
	assert.Equal(t, 22, stats.BytesSent)
	assert.Equal(t, 22, stats.BytesReceived)
	assert.GreaterOrEqual(t, stats.Chunks, 1)
	assert.NotEmpty(t, out.String())
}

func TestRun_PeerClosesWithoutReply(t *testing.T) {
	data := payload.MustDecode(payload.DefaultHex)

	addr := startServer(t, func(conn net.Conn) {
		got := make([]byte, len(data))
		io.ReadFull(conn, got)
		// Close without sending anything back.
	})

	var out bytes.Buffer
	p := New(addr, data)
	p.Out = &out

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The zero-length read ends the loop cleanly instead of spinning.
	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 0, p.Stats().BytesReceived)
	assert.Empty(t, out.String())
}

func TestRun_NoListener(t *testing.T) {
	// Grab a free port, then close the listener so nothing is there.
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	p := New(addr, payload.MustDecode(payload.DefaultHex))
	p.Out = io.Discard

	err = p.Run(context.Background())
	require.Error(t, err)
	// Nothing may be sent when the connection fails.
	assert.Equal(t, 0, p.Stats().BytesSent)
}

func TestRun_ContextCancellation(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		// Swallow the payload, then keep the connection open silently.
		buf := make([]byte, 64)
		conn.Read(buf)
		time.Sleep(5 * time.Second)
	})

	p := New(addr, []byte{0x41})
	p.Out = io.Discard

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRun_IdleTimeout(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		conn.Read(buf)
		time.Sleep(5 * time.Second)
	})

	p := New(addr, []byte{0x41})
	p.Out = io.Discard
	p.IdleTimeout = 200 * time.Millisecond

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}

func TestRun_DecodeReplies(t *testing.T) {
	reply := (&wire.Heartbeat{}).Encode()
	ticket := (&wire.Ticket{
		Plate: "UN1X", Road: 123,
		Mile1: 8, Timestamp1: 0,
		Mile2: 9, Timestamp2: 45,
		Speed: 8000,
	}).Encode()
	reply = append(reply, ticket...)

	addr := startServer(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		conn.Read(buf)
		// Split mid-ticket so the probe has to reassemble.
		conn.Write(reply[:5])
		time.Sleep(50 * time.Millisecond)
		conn.Write(reply[5:])
	})

	var out bytes.Buffer
	p := New(addr, payload.MustDecode(payload.DispatcherHex))
	p.Out = &out
	p.DecodeReplies = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Contains(t, out.String(), "Heartbeat{}")
	assert.Contains(t, out.String(), `Ticket{plate: "UN1X"`)
	assert.Contains(t, out.String(), "80.00 mph")
}
