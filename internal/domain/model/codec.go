package model

import (
	"encoding/json"
	"fmt"
)

// Encode renders the queue wire format.
func (l LiftRide) Encode() ([]byte, error) {
	return json.Marshal(l)
}

// DecodeLiftRide parses a queue payload. All six fields are required.
func DecodeLiftRide(body []byte) (LiftRide, error) {
	var w wireLiftRide
	if err := json.Unmarshal(body, &w); err != nil {
		return LiftRide{}, fmt.Errorf("%w: %v", ErrInvalidLiftRide, err)
	}
	if err := w.validate(); err != nil {
		return LiftRide{}, err
	}
	return LiftRide{
		ResortID: *w.ResortID,
		SeasonID: *w.SeasonID,
		DayID:    *w.DayID,
		SkierID:  *w.SkierID,
		LiftID:   *w.LiftID,
		Time:     *w.Time,
	}, nil
}
