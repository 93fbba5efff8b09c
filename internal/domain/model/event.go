// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strconv"
)

// QueueName is the durable queue lift rides travel through.
const QueueName = "ski_lift_rides"

// ErrInvalidLiftRide is returned when a queue payload is missing fields.
var ErrInvalidLiftRide = errors.New("invalid lift ride")

// SkiEvent is one synthetic lift ride produced by the load generator.
// Values are passed by copy and never mutated after creation.
type SkiEvent struct {
	SkierID  int `json:"skierID"`
	ResortID int `json:"resortID"`
	LiftID   int `json:"liftID"`
	SeasonID int `json:"seasonID"`
	DayID    int `json:"dayID"`
	Time     int `json:"time"`
}

// Endpoint returns the ingress path for the event, relative to the base URL.
func (e SkiEvent) Endpoint() string {
	return fmt.Sprintf("skiers/%d/seasons/%d/days/%d/skiers/%d", e.ResortID, e.SeasonID, e.DayID, e.SkierID)
}

// LiftRide is the message published to the queue: the request body flattened
// with the identifiers taken from the URL.
type LiftRide struct {
	ResortID int `json:"resortID"`
	SeasonID int `json:"seasonID"`
	DayID    int `json:"dayID"`
	SkierID  int `json:"skierID"`
	LiftID   int `json:"liftID"`
	Time     int `json:"time"`
}

// wireLiftRide uses pointers so absent fields can be told apart from zeros.
type wireLiftRide struct {
	ResortID *int `json:"resortID"`
	SeasonID *int `json:"seasonID"`
	DayID    *int `json:"dayID"`
	SkierID  *int `json:"skierID"`
	LiftID   *int `json:"liftID"`
	Time     *int `json:"time"`
}

// validate reports which of the six fields is missing, if any.
func (w wireLiftRide) validate() error {
	switch {
	case w.ResortID == nil:
		return fmt.Errorf("%w: missing resortID", ErrInvalidLiftRide)
	case w.SeasonID == nil:
		return fmt.Errorf("%w: missing seasonID", ErrInvalidLiftRide)
	case w.DayID == nil:
		return fmt.Errorf("%w: missing dayID", ErrInvalidLiftRide)
	case w.SkierID == nil:
		return fmt.Errorf("%w: missing skierID", ErrInvalidLiftRide)
	case w.LiftID == nil:
		return fmt.Errorf("%w: missing liftID", ErrInvalidLiftRide)
	case w.Time == nil:
		return fmt.Errorf("%w: missing time", ErrInvalidLiftRide)
	}
	return nil
}

// Record converts the message into the row persisted by consumers.
func (l LiftRide) Record() Record {
	return Record{
		SkierID:   l.SkierID,
		DaySeason: DaySeason(l.DayID, l.SeasonID),
		LiftID:    l.LiftID,
		ResortID:  l.ResortID,
		Time:      l.Time,
	}
}

// Record is the persisted shape of a lift ride. (SkierID, DaySeason) is the
// primary key; writing the same key again overwrites it.
type Record struct {
	SkierID   int
	DaySeason string
	LiftID    int
	ResortID  int
	Time      int
}

// Key returns the composite key as a single string.
func (r Record) Key() string {
	return strconv.Itoa(r.SkierID) + ":" + r.DaySeason
}

// DaySeason builds the sort key "<dayID>#<seasonID>".
func DaySeason(dayID, seasonID int) string {
	return strconv.Itoa(dayID) + "#" + strconv.Itoa(seasonID)
}
