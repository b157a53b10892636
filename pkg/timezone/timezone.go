package timezone

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DateLayout is the wire format for calendar dates.
	DateLayout = "2006-01-02"
	// TimeLayout is the wire format for clock times.
	TimeLayout = "15:04:05"
)

// EventKind classifies a recorded conversion decision.
type EventKind string

const (
	EventConvert      EventKind = "convert"
	EventIsPast       EventKind = "is_past"
	EventZoneFallback EventKind = "zone_fallback"
)

// Event is one conversion decision, recorded so callers and tests can
// inspect recent behaviour without reaching into package state.
type Event struct {
	Kind       EventKind `json:"kind"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	SourceZone string    `json:"source_zone"`
	TargetZone string    `json:"target_zone"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// Sink receives conversion events.
type Sink interface {
	Record(Event)
}

// RingSink keeps the most recent events up to a fixed capacity.
type RingSink struct {
	mu     sync.Mutex
	cap    int
	events []Event
}

// NewRingSink builds a bounded sink. Capacity defaults to 64.
func NewRingSink(capacity int) *RingSink {
	if capacity <= 0 {
		capacity = 64
	}
	return &RingSink{cap: capacity}
}

// Record appends an event, evicting the oldest when full.
func (s *RingSink) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	if len(s.events) > s.cap {
		s.events = s.events[len(s.events)-s.cap:]
	}
}

// Events returns a copy of the recorded events, oldest first.
func (s *RingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Converter translates (date, time) pairs between IANA zones and answers
// "has this instant elapsed" questions. All class times in the system are
// authored in the admin zone; the converter is the only component allowed
// to reason across zones.
type Converter struct {
	adminName string
	adminLoc  *time.Location
	logger    *zap.Logger
	sink      Sink

	now func() time.Time
}

// NewConverter validates the admin zone eagerly; a bad admin zone is a
// startup failure, not something to fall back from.
func NewConverter(adminZone string, logger *zap.Logger, sink Sink) (*Converter, error) {
	loc, err := time.LoadLocation(adminZone)
	if err != nil {
		return nil, fmt.Errorf("load admin timezone %q: %w", adminZone, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{
		adminName: adminZone,
		adminLoc:  loc,
		logger:    logger,
		sink:      sink,
		now:       time.Now,
	}, nil
}

// AdminZone returns the canonical zone identifier.
func (c *Converter) AdminZone() string {
	return c.adminName
}

// WithNow returns a copy using the provided clock. Intended for tests.
func (c *Converter) WithNow(now func() time.Time) *Converter {
	clone := *c
	clone.now = now
	return &clone
}

// ToZone re-expresses the same absolute instant in the target zone,
// crossing a date boundary when the offset difference requires it.
// An unknown zone identifier degrades to the admin zone instead of failing.
func (c *Converter) ToZone(date, clock, sourceZone, targetZone string) (string, string, error) {
	srcLoc := c.resolveZone(sourceZone)
	dstLoc := c.resolveZone(targetZone)

	instant, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, srcLoc)
	if err != nil {
		return "", "", fmt.Errorf("parse %q %q: %w", date, clock, err)
	}

	converted := instant.In(dstLoc)
	c.record(Event{
		Kind:       EventConvert,
		Date:       date,
		Time:       clock,
		SourceZone: sourceZone,
		TargetZone: targetZone,
		Detail:     converted.Format(DateLayout + " " + TimeLayout),
	})
	return converted.Format(DateLayout), converted.Format(TimeLayout), nil
}

// IsPast answers whether the given wall-clock moment has already elapsed
// for an observer in observerZone. The literal (date, time) authored in
// sourceZone is read as the observer's own wall clock, so an observer
// west of the source zone keeps the moment "live" until the same local
// clock time passes. This is the single authority for "has this class
// ended"; callers must not compare raw strings across zones.
func (c *Converter) IsPast(date, clock, sourceZone, observerZone string) (bool, error) {
	loc := c.resolveZone(observerZone)

	moment, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return false, fmt.Errorf("parse %q %q: %w", date, clock, err)
	}

	past := moment.Before(c.now())
	c.record(Event{
		Kind:       EventIsPast,
		Date:       date,
		Time:       clock,
		SourceZone: sourceZone,
		TargetZone: observerZone,
		Detail:     fmt.Sprintf("past=%t", past),
	})
	return past, nil
}

// NowInAdminZone returns the current date and time in the canonical zone.
func (c *Converter) NowInAdminZone() (string, string) {
	now := c.now().In(c.adminLoc)
	return now.Format(DateLayout), now.Format(TimeLayout)
}

// ParseInAdminZone interprets a (date, time) pair as an admin-zone instant.
func (c *Converter) ParseInAdminZone(date, clock string) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, c.adminLoc)
}

func (c *Converter) resolveZone(name string) *time.Location {
	if name == "" || name == c.adminName {
		return c.adminLoc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		c.logger.Warn("unknown timezone, falling back to admin zone",
			zap.String("zone", name),
			zap.String("admin_zone", c.adminName),
		)
		c.record(Event{
			Kind:       EventZoneFallback,
			SourceZone: name,
			TargetZone: c.adminName,
			Detail:     err.Error(),
		})
		return c.adminLoc
	}
	return loc
}

func (c *Converter) record(e Event) {
	if c.sink == nil {
		return
	}
	if e.At.IsZero() {
		e.At = c.now()
	}
	c.sink.Record(e)
}
