package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/skilift/internal/domain/model"
	"github.com/okian/skilift/pkg/logger"
	"github.com/okian/skilift/pkg/metrics"
)

const (
	skiersRoot    = "/skiers"
	pathSegments  = 8
	maxBodyBytes  = 1 << 16
	liveness      = "It works!"
	recordedReply = "Lift ride recorded successfully"
)

// Publisher hands a validated lift ride to the queue.
type Publisher interface {
	Publish(ctx context.Context, ride model.LiftRide) error
}

// rejection is a validation failure reported to the caller verbatim.
type rejection struct {
	reason  string
	message string
}

func (r rejection) Error() string { return r.message }

var (
	rejectURLFormat    = rejection{reason: "url_format", message: "Invalid URL format."}
	rejectURLStructure = rejection{reason: "url_structure", message: "Invalid URL structure."}
	rejectURLNumber    = rejection{reason: "url_number", message: "Invalid numerical value in URL"}
	rejectJSON         = rejection{reason: "json", message: "Invalid JSON body."}
	rejectMissing      = rejection{reason: "missing_fields", message: "Missing required fields."}
	rejectMismatch     = rejection{reason: "skier_mismatch", message: "Skier ID mismatch between URL and payload."}
)

// ridePath holds the identifiers carried by
// /skiers/{resortID}/seasons/{seasonID}/days/{dayID}/skiers/{skierID}.
type ridePath struct {
	ResortID int
	SeasonID int
	DayID    int
	SkierID  int
}

// parseRidePath parses the part of the path after /skiers. Trailing slashes
// are ignored; literal segments accept singular and plural spellings.
func parseRidePath(info string) (ridePath, error) {
	if info == "" {
		return ridePath{}, rejectURLFormat
	}
	parts := strings.Split(strings.TrimRight(info, "/"), "/")
	if len(parts) != pathSegments || parts[0] != "" {
		return ridePath{}, rejectURLStructure
	}
	if parts[2] != "seasons" || !oneOf(parts[4], "day", "days") || !oneOf(parts[6], "skier", "skiers") {
		return ridePath{}, rejectURLStructure
	}

	var (
		p   ridePath
		err error
	)
	for _, f := range []struct {
		dst *int
		raw string
	}{
		{&p.ResortID, parts[1]},
		{&p.SeasonID, parts[3]},
		{&p.DayID, parts[5]},
		{&p.SkierID, parts[7]},
	} {
		if *f.dst, err = strconv.Atoi(f.raw); err != nil {
			return ridePath{}, rejectURLNumber
		}
	}
	return p, nil
}

func oneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}

// maxExactFloat bounds float-encoded integers to the range float64 holds exactly.
const maxExactFloat = 1 << 53

// wholeNumber accepts a JSON number with an integral value, so 42 and 42.0
// both decode to 42 while 42.5 is rejected.
type wholeNumber int

func (n *wholeNumber) UnmarshalJSON(b []byte) error {
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(num.String(), 10, 0); err == nil {
		*n = wholeNumber(i)
		return nil
	}
	f, err := num.Float64()
	if err != nil {
		return err
	}
	if f != math.Trunc(f) || math.Abs(f) > maxExactFloat {
		return errNotWhole
	}
	*n = wholeNumber(f)
	return nil
}

var errNotWhole = errors.New("number is not a whole value")

// liftRideBody mirrors the POST body. Pointers tell absent fields from zeros.
type liftRideBody struct {
	SkierID *wholeNumber `json:"skierID"`
	LiftID  *wholeNumber `json:"liftID"`
	Time    *wholeNumber `json:"time"`
}

func decodeBody(r *http.Request, w http.ResponseWriter) (liftRideBody, error) {
	var body liftRideBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		return liftRideBody{}, rejectJSON
	}
	if body.SkierID == nil || body.LiftID == nil || body.Time == nil {
		return liftRideBody{}, rejectMissing
	}
	return body, nil
}

// SkiersHandler serves the lift-ride ingress.
type SkiersHandler struct {
	publisher Publisher
	logger    logger.Logger
}

// NewSkiersHandler creates a new skiers handler.
func NewSkiersHandler(p Publisher, l logger.Logger) *SkiersHandler {
	return &SkiersHandler{publisher: p, logger: l}
}

// HandleGet answers GET /skiers and below with a liveness string.
func (h *SkiersHandler) HandleGet(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(liveness))
}

// HandlePost validates a lift ride and publishes it. Nothing reaches the
// queue unless the path and body are both valid and agree on the skier.
func (h *SkiersHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_lift_ride"

	path, err := parseRidePath(strings.TrimPrefix(r.URL.Path, skiersRoot))
	if err != nil {
		h.reject(w, r, op, err)
		return
	}
	body, err := decodeBody(r, w)
	if err != nil {
		h.reject(w, r, op, err)
		return
	}
	if int(*body.SkierID) != path.SkierID {
		h.reject(w, r, op, rejectMismatch)
		return
	}

	ride := model.LiftRide{
		ResortID: path.ResortID,
		SeasonID: path.SeasonID,
		DayID:    path.DayID,
		SkierID:  path.SkierID,
		LiftID:   int(*body.LiftID),
		Time:     int(*body.Time),
	}
	if err := h.publisher.Publish(r.Context(), ride); err != nil {
		h.logger.Error(r.Context(), "publish failed",
			logger.String("path", r.URL.Path),
			logger.Error(WrapKind(op, ErrPublish, err)))
		writeError(w, http.StatusInternalServerError, "Internal Server Error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: recordedReply})
}

func (h *SkiersHandler) reject(w http.ResponseWriter, r *http.Request, op string, err error) {
	var rej rejection
	if !errors.As(err, &rej) {
		rej = rejection{reason: "unknown", message: err.Error()}
	}
	metrics.RecordIngressRejected(rej.reason)
	h.logger.Debug(r.Context(), "request rejected",
		logger.String("path", r.URL.Path),
		logger.Error(WrapKind(op, ErrBadRequest, rej)))
	writeError(w, http.StatusBadRequest, rej.message)
}
