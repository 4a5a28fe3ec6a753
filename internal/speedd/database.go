package speedd

// database.go = in-memory ticketing state shared by all connections.
// Speed limits and observations come from cameras; tickets queue here until
// a dispatcher responsible for the road shows up.

import (
	"log/slog"
	"math"
	"sort"
	"sync"

	"speedprobe/internal/wire"
)

// TicketArchive persists issued tickets for later inspection. Archiving is
// best effort: failures are logged and never block ticket dispatch.
type TicketArchive interface {
	SaveTicket(t *wire.Ticket) error
	Close() error
}

type observation struct {
	road uint16
	mile uint16
	ts   uint32
}

// Database is the shared ticketing state. All methods are safe for
// concurrent use.
type Database struct {
	mu           sync.Mutex
	limits       map[uint16]uint16 // road -> speed limit in mph
	observations map[string][]observation
	ticketDays   map[string]map[uint32]bool // plate -> days already ticketed
	pending      []*wire.Ticket
	archive      TicketArchive // may be nil (memory-only operation)
	logger       *slog.Logger
}

// NewDatabase creates an empty database. archive may be nil.
func NewDatabase(archive TicketArchive) *Database {
	return &Database{
		limits:       make(map[uint16]uint16),
		observations: make(map[string][]observation),
		ticketDays:   make(map[string]map[uint32]bool),
		archive:      archive,
		logger:       slog.Default(),
	}
}

// RecordSpeedLimit stores the limit a camera reported for its road.
func (d *Database) RecordSpeedLimit(road, limit uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limits[road] = limit
}

// RecordObservation stores a plate sighting and issues any tickets the new
// observation completes.
func (d *Database) RecordObservation(plate string, road, mile uint16, ts uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	obs := append(d.observations[plate], observation{road: road, mile: mile, ts: ts})
	sort.Slice(obs, func(i, j int) bool { return obs[i].ts < obs[j].ts })
	d.observations[plate] = obs

	if len(obs) > 1 {
		d.issueTickets(plate, road)
	}
}

// issueTickets walks adjacent same-road observation pairs for a plate and
// queues a ticket for each speeding pair, at most one per plate per day.
// Caller holds d.mu.
func (d *Database) issueTickets(plate string, road uint16) {
	limit, ok := d.limits[road]
	if !ok {
		d.logger.Error("no_speed_limit_for_road", "road", road)
		return
	}

	var obs []observation
	for _, o := range d.observations[plate] {
		if o.road == road {
			obs = append(obs, o)
		}
	}

	for i := 1; i < len(obs); i++ {
		o1, o2 := obs[i-1], obs[i]
		speed := averageSpeed(o1, o2)
		if !(speed > float64(limit)+0.1) {
			continue
		}

		// One ticket per plate per day; a ticket spanning midnight burns
		// both days.
		day1 := o1.ts / 86400
		day2 := o2.ts / 86400
		issued := d.ticketDays[plate]
		if issued == nil {
			issued = make(map[uint32]bool)
			d.ticketDays[plate] = issued
		}
		if issued[day1] || (day1 != day2 && issued[day2]) {
			d.logger.Debug("ticket_already_issued_for_day",
				"plate", plate,
				"day1", day1,
				"day2", day2,
			)
			continue
		}
		issued[day1] = true
		issued[day2] = true

		ticket := &wire.Ticket{
			Plate:      plate,
			Road:       road,
			Mile1:      o1.mile,
			Timestamp1: o1.ts,
			Mile2:      o2.mile,
			Timestamp2: o2.ts,
			Speed:      speedHundredths(speed),
		}
		d.logger.Info("ticket_issued",
			"plate", plate,
			"road", road,
			"speed", speed,
			"limit", limit,
		)
		d.pending = append(d.pending, ticket)

		if d.archive != nil {
			if err := d.archive.SaveTicket(ticket); err != nil {
				d.logger.Error("ticket_archive_failed",
					"plate", plate,
					"error", err.Error(),
				)
			}
		}
	}
}

// TakeTicket removes and returns the first queued ticket for any of the
// given roads.
func (d *Database) TakeTicket(roads []uint16) (*wire.Ticket, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, t := range d.pending {
		for _, r := range roads {
			if t.Road == r {
				d.pending = append(d.pending[:i], d.pending[i+1:]...)
				return t, true
			}
		}
	}
	return nil, false
}

// Requeue puts a ticket back at the head of the queue after a failed
// delivery.
func (d *Database) Requeue(t *wire.Ticket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append([]*wire.Ticket{t}, d.pending...)
}

// PendingTickets returns how many tickets are waiting for a dispatcher.
func (d *Database) PendingTickets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// averageSpeed is mph between two observations. Identical timestamps at
// different miles read as infinitely fast.
func averageSpeed(o1, o2 observation) float64 {
	miles := math.Abs(float64(o2.mile) - float64(o1.mile))
	hours := float64(o2.ts-o1.ts) / 3600
	if hours == 0 {
		if miles == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return miles / hours
}

// speedHundredths converts mph to the wire's mph*100, saturating at the
// field's maximum.
func speedHundredths(speed float64) uint16 {
	v := math.Round(speed * 100)
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
