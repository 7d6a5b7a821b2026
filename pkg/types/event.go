package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind identifies one of the four transcript event types.
type EventKind int

const (
	// KindUnknown is the zero value and never valid on a normalized event.
	KindUnknown EventKind = iota
	KindOfferReceived
	KindOfferViewed
	KindTransaction
	KindOfferCompleted
)

var eventKindNames = map[EventKind]string{
	KindOfferReceived:  "offer received",
	KindOfferViewed:    "offer viewed",
	KindTransaction:    "transaction",
	KindOfferCompleted: "offer completed",
}

// EventKinds lists every valid kind in transcript order of appearance.
var EventKinds = []EventKind{KindOfferReceived, KindOfferViewed, KindTransaction, KindOfferCompleted}

// String returns the transcript spelling of the kind.
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	if k == KindUnknown {
		return "unknown"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// IsOffer reports whether events of this kind reference an offer id.
func (k EventKind) IsOffer() bool {
	return k == KindOfferReceived || k == KindOfferViewed || k == KindOfferCompleted
}

// ParseEventKind accepts the transcript spelling ("offer received") as well as
// the snake_case form ("offer_received").
func ParseEventKind(s string) (EventKind, error) {
	norm := strings.ReplaceAll(strings.TrimSpace(strings.ToLower(s)), "_", " ")
	for kind, name := range eventKindNames {
		if name == norm {
			return kind, nil
		}
	}
	return KindUnknown, fmt.Errorf("types: unknown event kind %q", s)
}

// MarshalJSON encodes the kind using its transcript spelling. KindUnknown is
// encoded as "unknown" so that rejected events can still be archived.
func (k EventKind) MarshalJSON() ([]byte, error) {
	if _, ok := eventKindNames[k]; !ok && k != KindUnknown {
		return nil, fmt.Errorf("types: cannot marshal %v", k)
	}
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a transcript spelling.
func (k *EventKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "unknown" {
		*k = KindUnknown
		return nil
	}
	parsed, err := ParseEventKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is a normalized transcript entry. Events are immutable facts.
type Event struct {
	// PersonID identifies the customer
	PersonID string `json:"person"`

	// Time is hours since the start of the experiment
	Time int64 `json:"time"`

	// Kind is the event type
	Kind EventKind `json:"event"`

	// OfferID is set for offer events; empty when the source record had no id
	OfferID string `json:"offer_id,omitempty"`

	// Amount is the spend of a transaction event
	Amount float64 `json:"amount,omitempty"`

	// Reward is the reward paid on an offer completed event
	Reward float64 `json:"reward,omitempty"`

	// RawKind keeps the source spelling when Kind is KindUnknown
	RawKind string `json:"raw_kind,omitempty"`
}
