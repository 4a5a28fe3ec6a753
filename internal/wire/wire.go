package wire

// wire.go = binary codec for the speed daemon protocol.
// All integers are big-endian. Strings are a u8 length followed by that
// many bytes. Every message starts with a single type byte.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Message type bytes.
const (
	TypeError         byte = 0x10 // server -> client
	TypePlate         byte = 0x20 // client -> server
	TypeTicket        byte = 0x21 // server -> client
	TypeWantHeartbeat byte = 0x40 // client -> server
	TypeHeartbeat     byte = 0x41 // server -> client
	TypeIAmCamera     byte = 0x80 // client -> server
	TypeIAmDispatcher byte = 0x81 // client -> server
)

// ErrIncomplete signals that the buffer ends in the middle of a message.
// Callers should read more bytes and try again; nothing was consumed.
var ErrIncomplete = errors.New("wire: incomplete message")

// Message is any speed daemon protocol message.
type Message interface {
	Encode() []byte
}

// Plate reports a plate observation from a camera.
type Plate struct {
	Plate     string
	Timestamp uint32
}

// WantHeartbeat asks the server for heartbeats every Interval deciseconds.
// An interval of 0 means no heartbeats.
type WantHeartbeat struct {
	Interval uint32
}

// IAmCamera identifies the connection as a camera at a fixed position.
type IAmCamera struct {
	Road  uint16
	Mile  uint16
	Limit uint16 // mph
}

// IAmDispatcher identifies the connection as a ticket dispatcher.
type IAmDispatcher struct {
	Roads []uint16
}

// ErrorMsg is the server's fatal error reply.
type ErrorMsg struct {
	Message string
}

// Ticket is a speeding ticket. Speed is mph times 100.
type Ticket struct {
	Plate      string
	Road       uint16
	Mile1      uint16
	Timestamp1 uint32
	Mile2      uint16
	Timestamp2 uint32
	Speed      uint16
}

// Heartbeat is the server's periodic keepalive.
type Heartbeat struct{}

// appendString writes a u8-length-prefixed string. Strings longer than
// 255 bytes are truncated so the length prefix and the payload stay
// consistent on the wire.
func appendString(dst []byte, s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	dst = append(dst, byte(len(s)))
	return append(dst, s...)
}

func (m *Plate) Encode() []byte {
	b := appendString([]byte{TypePlate}, m.Plate)
	return binary.BigEndian.AppendUint32(b, m.Timestamp)
}

func (m *WantHeartbeat) Encode() []byte {
	return binary.BigEndian.AppendUint32([]byte{TypeWantHeartbeat}, m.Interval)
}

func (m *IAmCamera) Encode() []byte {
	b := []byte{TypeIAmCamera}
	b = binary.BigEndian.AppendUint16(b, m.Road)
	b = binary.BigEndian.AppendUint16(b, m.Mile)
	return binary.BigEndian.AppendUint16(b, m.Limit)
}

func (m *IAmDispatcher) Encode() []byte {
	b := []byte{TypeIAmDispatcher, byte(len(m.Roads))}
	for _, r := range m.Roads {
		b = binary.BigEndian.AppendUint16(b, r)
	}
	return b
}

func (m *ErrorMsg) Encode() []byte {
	return appendString([]byte{TypeError}, m.Message)
}

func (m *Ticket) Encode() []byte {
	b := appendString([]byte{TypeTicket}, m.Plate)
	b = binary.BigEndian.AppendUint16(b, m.Road)
	b = binary.BigEndian.AppendUint16(b, m.Mile1)
	b = binary.BigEndian.AppendUint32(b, m.Timestamp1)
	b = binary.BigEndian.AppendUint16(b, m.Mile2)
	b = binary.BigEndian.AppendUint32(b, m.Timestamp2)
	return binary.BigEndian.AppendUint16(b, m.Speed)
}

func (m *Heartbeat) Encode() []byte {
	return []byte{TypeHeartbeat}
}

func (m *Plate) String() string {
	return fmt.Sprintf("Plate{plate: %q, timestamp: %d}", m.Plate, m.Timestamp)
}

func (m *WantHeartbeat) String() string {
	return fmt.Sprintf("WantHeartbeat{interval: %d}", m.Interval)
}

func (m *IAmCamera) String() string {
	return fmt.Sprintf("IAmCamera{road: %d, mile: %d, limit: %d}", m.Road, m.Mile, m.Limit)
}

func (m *IAmDispatcher) String() string {
	return fmt.Sprintf("IAmDispatcher{roads: %v}", m.Roads)
}

func (m *ErrorMsg) String() string {
	return fmt.Sprintf("Error{message: %q}", m.Message)
}

func (m *Ticket) String() string {
	return fmt.Sprintf("Ticket{plate: %q, road: %d, mile1: %d, timestamp1: %d, mile2: %d, timestamp2: %d, speed: %.2f mph}",
		m.Plate, m.Road, m.Mile1, m.Timestamp1, m.Mile2, m.Timestamp2, float64(m.Speed)/100)
}

func (m *Heartbeat) String() string {
	return "Heartbeat{}"
}

// Decode parses the first message in buf. It returns the message and the
// number of bytes consumed. ErrIncomplete means buf ends mid-message and
// nothing was consumed; an unknown type byte is a hard error.
func Decode(buf []byte) (Message, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	switch buf[0] {
	case TypePlate:
		s, n, err := decodeString(buf[1:])
		if err != nil {
			return nil, 0, err
		}
		if len(buf) < 1+n+4 {
			return nil, 0, ErrIncomplete
		}
		ts := binary.BigEndian.Uint32(buf[1+n:])
		return &Plate{Plate: s, Timestamp: ts}, 1 + n + 4, nil

	case TypeWantHeartbeat:
		if len(buf) < 5 {
			return nil, 0, ErrIncomplete
		}
		return &WantHeartbeat{Interval: binary.BigEndian.Uint32(buf[1:])}, 5, nil

	case TypeIAmCamera:
		if len(buf) < 7 {
			return nil, 0, ErrIncomplete
		}
		return &IAmCamera{
			Road:  binary.BigEndian.Uint16(buf[1:]),
			Mile:  binary.BigEndian.Uint16(buf[3:]),
			Limit: binary.BigEndian.Uint16(buf[5:]),
		}, 7, nil

	case TypeIAmDispatcher:
		if len(buf) < 2 {
			return nil, 0, ErrIncomplete
		}
		count := int(buf[1])
		if len(buf) < 2+2*count {
			return nil, 0, ErrIncomplete
		}
		roads := make([]uint16, count)
		for i := range roads {
			roads[i] = binary.BigEndian.Uint16(buf[2+2*i:])
		}
		return &IAmDispatcher{Roads: roads}, 2 + 2*count, nil

	case TypeError:
		s, n, err := decodeString(buf[1:])
		if err != nil {
			return nil, 0, err
		}
		return &ErrorMsg{Message: s}, 1 + n, nil

	case TypeTicket:
		s, n, err := decodeString(buf[1:])
		if err != nil {
			return nil, 0, err
		}
		if len(buf) < 1+n+16 {
			return nil, 0, ErrIncomplete
		}
		rest := buf[1+n:]
		return &Ticket{
			Plate:      s,
			Road:       binary.BigEndian.Uint16(rest),
			Mile1:      binary.BigEndian.Uint16(rest[2:]),
			Timestamp1: binary.BigEndian.Uint32(rest[4:]),
			Mile2:      binary.BigEndian.Uint16(rest[8:]),
			Timestamp2: binary.BigEndian.Uint32(rest[10:]),
			Speed:      binary.BigEndian.Uint16(rest[14:]),
		}, 1 + n + 16, nil

	case TypeHeartbeat:
		return &Heartbeat{}, 1, nil

	default:
		return nil, 0, fmt.Errorf("wire: unknown message type 0x%02x", buf[0])
	}
}

// decodeString parses a u8-length-prefixed string and returns it together
// with the total number of bytes it occupies.
func decodeString(buf []byte) (string, int, error) {
	if len(buf) < 1 {
		return "", 0, ErrIncomplete
	}
	l := int(buf[0])
	if len(buf) < 1+l {
		return "", 0, ErrIncomplete
	}
	return string(buf[1 : 1+l]), 1 + l, nil
}

// Decoder reads messages from a byte stream, buffering partial input
// between reads.
type Decoder struct {
	r       io.Reader
	pending []byte
	scratch [1024]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next blocks until a full message is available and returns it.
// A clean end of stream between messages is io.EOF; an end of stream in
// the middle of a message is io.ErrUnexpectedEOF.
func (d *Decoder) Next() (Message, error) {
	for {
		if len(d.pending) > 0 {
			msg, n, err := Decode(d.pending)
			if err == nil {
				d.pending = d.pending[n:]
				return msg, nil
			}
			if !errors.Is(err, ErrIncomplete) {
				return nil, err
			}
		}

		n, err := d.r.Read(d.scratch[:])
		if n > 0 {
			d.pending = append(d.pending, d.scratch[:n]...)
			continue
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) && len(d.pending) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
}
