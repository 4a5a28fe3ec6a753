package speedd

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"speedprobe/internal/wire"
)

const MaxDeadlineDuration = 5 * time.Minute // max read timeout duration

// deciseconds, the unit WantHeartbeat intervals are expressed in
const decisecond = 100 * time.Millisecond

type clientRole int

const (
	roleUnknown clientRole = iota
	roleCamera
	roleDispatcher
)

type ClientConnection struct {
	ID      string // unique identifier = key in map
	conn    net.Conn
	Manager *ConnectionManager // reference to the manager for ticket dispatch
	Limiter *rate.Limiter      // rate limiter for incoming messages

	writeMu sync.Mutex // serializes writes from the listen loop and the heartbeat goroutine

	stateMu       sync.Mutex
	role          clientRole
	camera        wire.IAmCamera // valid when role == roleCamera
	roads         []uint16       // valid when role == roleDispatcher
	heartbeatSet  bool
	stopHeartbeat chan struct{}
}

// constructor for ClientConnection
func NewClientConnection(conn net.Conn, manager *ConnectionManager) *ClientConnection {
	return &ClientConnection{
		ID:            uuid.NewString(),
		conn:          conn,
		Manager:       manager,
		Limiter:       rate.NewLimiter(rate.Limit(100), 200), // 100 msgs/sec with burst of 200
		stopHeartbeat: make(chan struct{}),
	}
}

// Listen runs the per-connection protocol loop until the client disconnects
// or commits a protocol error.
func (c *ClientConnection) Listen() {
	defer c.conn.Close()
	defer close(c.stopHeartbeat)

	dec := wire.NewDecoder(bufio.NewReader(c.conn))

	c.Manager.logger.Info("client_started_listening",
		"client_id", c.ID,
		"remote_addr", c.conn.RemoteAddr().String(),
	)

	for {
		c.conn.SetReadDeadline(c.readDeadline(time.Now()))

		msg, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.Manager.logger.Info("client_disconnected",
					"client_id", c.ID,
				)
				return
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				c.Manager.logger.Warn("client_stream_truncated",
					"client_id", c.ID,
				)
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				c.Manager.logger.Warn("client_read_timeout",
					"client_id", c.ID,
				)
				return
			}
			if errors.Is(err, net.ErrClosed) ||
				strings.Contains(err.Error(), "closed network connection") ||
				strings.Contains(err.Error(), "connection was aborted") ||
				strings.Contains(err.Error(), "forcibly closed") {
				return // expected during shutdown
			}
			// Undecodable input is a protocol violation.
			c.fail("invalid message: " + err.Error())
			return
		}

		if !c.Limiter.Allow() {
			c.Manager.logger.Warn("rate_limit_exceeded",
				"client_id", c.ID,
			)
			c.SendMessage(&wire.ErrorMsg{Message: "rate limit exceeded"})
			continue
		}

		if !c.handleMessage(msg) {
			return
		}
	}
}

// readDeadline returns the deadline for the next read. Dispatchers sit
// idle for as long as it takes a ticket to show up, so once identified
// they are exempt from the inactivity timeout.
func (c *ClientConnection) readDeadline(now time.Time) time.Time {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.role == roleDispatcher {
		return time.Time{}
	}
	return now.Add(MaxDeadlineDuration)
}

// handleMessage applies one client message. A false return ends the
// connection (an Error has already been sent).
func (c *ClientConnection) handleMessage(msg wire.Message) bool {
	switch m := msg.(type) {
	case *wire.IAmCamera:
		c.stateMu.Lock()
		if c.role != roleUnknown {
			c.stateMu.Unlock()
			return c.fail("already identified")
		}
		c.role = roleCamera
		c.camera = *m
		c.stateMu.Unlock()

		c.Manager.db.RecordSpeedLimit(m.Road, m.Limit)
		c.Manager.logger.Info("camera_registered",
			"client_id", c.ID,
			"road", m.Road,
			"mile", m.Mile,
			"limit", m.Limit,
		)
		return true

	case *wire.IAmDispatcher:
		c.stateMu.Lock()
		if c.role != roleUnknown {
			c.stateMu.Unlock()
			return c.fail("already identified")
		}
		c.role = roleDispatcher
		c.roads = m.Roads
		c.stateMu.Unlock()

		c.Manager.logger.Info("dispatcher_registered",
			"client_id", c.ID,
			"roads", m.Roads,
		)
		// Drain any tickets that queued up before this dispatcher arrived.
		c.Manager.DispatchPending()
		return true

	case *wire.Plate:
		c.stateMu.Lock()
		if c.role != roleCamera {
			c.stateMu.Unlock()
			return c.fail("plate report from a non-camera client")
		}
		cam := c.camera
		c.stateMu.Unlock()

		c.Manager.logger.Debug("plate_observed",
			"client_id", c.ID,
			"plate", m.Plate,
			"road", cam.Road,
			"mile", cam.Mile,
			"timestamp", m.Timestamp,
		)
		c.Manager.db.RecordObservation(m.Plate, cam.Road, cam.Mile, m.Timestamp)
		c.Manager.DispatchPending()
		return true

	case *wire.WantHeartbeat:
		c.stateMu.Lock()
		if c.heartbeatSet {
			c.stateMu.Unlock()
			return c.fail("heartbeat already requested")
		}
		c.heartbeatSet = true
		c.stateMu.Unlock()

		if m.Interval > 0 {
			go c.heartbeatLoop(time.Duration(m.Interval) * decisecond)
		}
		return true

	default:
		// Server-to-client messages coming from a client are illegal.
		return c.fail("unexpected message")
	}
}

// fail sends a fatal Error to the client. Always returns false.
func (c *ClientConnection) fail(reason string) bool {
	c.Manager.logger.Warn("client_protocol_error",
		"client_id", c.ID,
		"reason", reason,
	)
	c.SendMessage(&wire.ErrorMsg{Message: reason})
	return false
}

// heartbeatLoop sends periodic heartbeats until the connection goes away.
func (c *ClientConnection) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHeartbeat:
			return
		case <-ticker.C:
			if err := c.SendMessage(&wire.Heartbeat{}); err != nil {
				return
			}
		}
	}
}

// SendMessage encodes and writes a message, looping over partial writes.
func (c *ClientConnection) SendMessage(msg wire.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	data := msg.Encode()
	for len(data) > 0 {
		n, err := c.conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Roads returns the dispatcher's roads, or nil for other roles.
func (c *ClientConnection) Roads() []uint16 {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.role != roleDispatcher {
		return nil
	}
	return c.roads
}

// Close closes the underlying connection.
func (c *ClientConnection) Close() {
	c.conn.Close()
}
