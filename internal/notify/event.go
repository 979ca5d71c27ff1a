// Package notify fans detection and recording-state events out to the
// configured transports (NATS, Redis pub/sub, WebSocket clients).
//
// Events are encoded as JSON:
//
//	{"id":"…","event":"detection","time":"…","labelIndex":4,"labelName":"german",
//	 "probability":0.91,"percent":91,"scores":[…]}
//	{"id":"…","event":"recordingState","time":"…","active":true}
//
// A failing transport never blocks or fails detection; errors are logged and
// counted by the [Dispatcher].
package notify

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
)

// Kind names an event type.
type Kind string

const (
	// KindDetection carries an accepted classification.
	KindDetection Kind = "detection"

	// KindRecordingState reports the start or end of a recording cycle.
	KindRecordingState Kind = "recordingState"
)

// Detection is the payload of a [KindDetection] event.
type Detection struct {
	LabelIndex  int       `json:"labelIndex"`
	LabelName   string    `json:"labelName"`
	Probability float32   `json:"probability"`
	Percent     float64   `json:"percent"`
	Scores      []float32 `json:"scores,omitempty"`
}

// Event is one notification.
type Event struct {
	ID   uuid.UUID `json:"id"`
	Kind Kind      `json:"event"`
	Time time.Time `json:"time"`

	*Detection

	// Active is set for KindRecordingState only.
	Active *bool `json:"active,omitempty"`
}

// NewDetection builds a detection event from an accepted result.
func NewDetection(r classifier.Result) Event {
	return Event{
		ID:   uuid.New(),
		Kind: KindDetection,
		Time: time.Now().UTC(),
		Detection: &Detection{
			LabelIndex:  r.Index,
			LabelName:   r.Label,
			Probability: r.Probability,
			Percent:     r.Percent(),
			Scores:      r.Scores,
		},
	}
}

// NewRecordingState builds a recording-state event.
func NewRecordingState(active bool) Event {
	return Event{
		ID:     uuid.New(),
		Kind:   KindRecordingState,
		Time:   time.Now().UTC(),
		Active: &active,
	}
}

// Encode returns the JSON form of e.
func Encode(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("notify: encode %s event: %w", e.Kind, err)
	}
	return b, nil
}

// Decode parses an event produced by [Encode].
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("notify: decode event: %w", err)
	}
	return e, nil
}
