package wire

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedprobe/internal/payload"
)

func TestDecode_DefaultProbePayload(t *testing.T) {
	// The default probe payload is three client messages back to back.
	buf := payload.MustDecode(payload.DefaultHex)

	msg, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, &IAmCamera{Road: 123, Mile: 8, Limit: 60}, msg)
	buf = buf[n:]

	msg, n, err = Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, &Plate{Plate: "UN1X", Timestamp: 0}, msg)
	buf = buf[n:]

	msg, n, err = Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, &WantHeartbeat{Interval: 10}, msg)
	assert.Empty(t, buf[n:])
}

func TestDecode_ReferencePayloads(t *testing.T) {
	buf := payload.MustDecode(payload.CameraMile9Hex)
	msg, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, &IAmCamera{Road: 123, Mile: 9, Limit: 60}, msg)

	msg, _, err = Decode(buf[n:])
	require.NoError(t, err)
	assert.Equal(t, &Plate{Plate: "UN1X", Timestamp: 45}, msg)

	msg, n, err = Decode(payload.MustDecode(payload.DispatcherHex))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, &IAmDispatcher{Roads: []uint16{123}}, msg)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	msgs := []Message{
		&Plate{Plate: "UN1X", Timestamp: 123456},
		&WantHeartbeat{Interval: 10},
		&IAmCamera{Road: 123, Mile: 8, Limit: 60},
		&IAmDispatcher{Roads: []uint16{66, 368, 5000}},
		&ErrorMsg{Message: "illegal msg"},
		&Ticket{Plate: "UN1X", Road: 123, Mile1: 8, Timestamp1: 0, Mile2: 9, Timestamp2: 45, Speed: 8000},
		&Heartbeat{},
	}
	for _, want := range msgs {
		b := want.Encode()
		got, n, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, len(b), n)
		assert.Equal(t, want, got)
	}
}

func TestDecode_TicketFieldOffsets(t *testing.T) {
	// Hand-built ticket frame so every field offset is pinned to the wire
	// layout, independent of the encoder. Timestamp2 (45) and speed (8000)
	// are chosen so misreading one into the other cannot go unnoticed.
	raw := []byte{
		0x21,                   // Ticket
		0x04, 'U', 'N', '1', 'X', // plate
		0x00, 0x7b, // road = 123
		0x00, 0x08, // mile1 = 8
		0x00, 0x00, 0x00, 0x00, // timestamp1 = 0
		0x00, 0x09, // mile2 = 9
		0x00, 0x00, 0x00, 0x2d, // timestamp2 = 45
		0x1f, 0x40, // speed = 8000
	}

	msg, n, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, &Ticket{
		Plate:      "UN1X",
		Road:       123,
		Mile1:      8,
		Timestamp1: 0,
		Mile2:      9,
		Timestamp2: 45,
		Speed:      8000,
	}, msg)
}

func TestEncode_OverlongStringsTruncate(t *testing.T) {
	// A string longer than the u8 length prefix can express must not
	// desynchronize the frame.
	long := strings.Repeat("x", 300)
	b := (&ErrorMsg{Message: long}).Encode()
	assert.Len(t, b, 1+1+255)

	msg, n, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	assert.Equal(t, &ErrorMsg{Message: long[:255]}, msg)
}

func TestDecode_Incomplete(t *testing.T) {
	full := (&Ticket{Plate: "UN1X", Road: 123, Mile1: 8, Mile2: 9, Timestamp2: 45, Speed: 8000}).Encode()
	for i := 0; i < len(full); i++ {
		_, n, err := Decode(full[:i])
		assert.ErrorIs(t, err, ErrIncomplete, "prefix of %d bytes", i)
		assert.Zero(t, n)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, _, err := Decode([]byte{0xff, 0x00})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncomplete)
}

func TestDecoder_ReassemblesSplitMessages(t *testing.T) {
	var stream []byte
	stream = append(stream, (&Heartbeat{}).Encode()...)
	stream = append(stream, (&Ticket{Plate: "UN1X", Road: 123, Mile1: 8, Mile2: 9, Timestamp2: 45, Speed: 8000}).Encode()...)
	stream = append(stream, (&ErrorMsg{Message: "bye"}).Encode()...)

	// Feed the stream one byte at a time to force reassembly.
	dec := NewDecoder(iotest(stream))

	msg, err := dec.Next()
	require.NoError(t, err)
	assert.IsType(t, &Heartbeat{}, msg)

	msg, err = dec.Next()
	require.NoError(t, err)
	ticket, ok := msg.(*Ticket)
	require.True(t, ok)
	assert.Equal(t, "UN1X", ticket.Plate)
	assert.Equal(t, uint16(8000), ticket.Speed)

	msg, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, &ErrorMsg{Message: "bye"}, msg)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_TruncatedStream(t *testing.T) {
	full := (&IAmCamera{Road: 123, Mile: 8, Limit: 60}).Encode()
	dec := NewDecoder(bytes.NewReader(full[:4]))
	_, err := dec.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// iotest returns a reader that yields one byte per Read call.
func iotest(b []byte) io.Reader {
	return &oneByteReader{buf: b}
}

type oneByteReader struct {
	buf []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		return 0, io.EOF
	}
	p[0] = r.buf[0]
	r.buf = r.buf[1:]
	return 1, nil
}
