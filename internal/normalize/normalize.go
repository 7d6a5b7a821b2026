// Package normalize converts raw transcript records into flat, sortable events.
//
// The raw transcript keeps typed fields inside a heterogeneous "value" object
// and spells the offer identifier differently depending on the event kind:
// "offer id" on received events and "offer_id" on viewed and completed events.
package normalize

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	perrors "github.com/arkilian/offerprofile/internal/errors"
	"github.com/arkilian/offerprofile/pkg/types"
)

// Payload keys used by the transcript.
const (
	KeyReceivedOfferID = "offer id"
	KeyOfferID         = "offer_id"
	KeyAmount          = "amount"
	KeyReward          = "reward"
)

// RawEvent is a transcript record as exported by the loyalty platform.
type RawEvent struct {
	Person string                     `json:"person"`
	Event  string                     `json:"event"`
	Time   *int64                     `json:"time"`
	Value  map[string]json.RawMessage `json:"value"`
}

// Normalize flattens a raw record. It never fails on an unrecognized event
// kind: the event is returned with KindUnknown so the timeline engine can
// reject the owning customer. A missing offer id leaves OfferID empty.
func Normalize(raw RawEvent) (types.Event, error) {
	if raw.Person == "" {
		return types.Event{}, perrors.NewValidationError(perrors.CodeMissingField, "normalize: record without person")
	}
	if raw.Time == nil {
		return types.Event{}, perrors.NewValidationError(perrors.CodeMissingField,
			fmt.Sprintf("normalize: record for %s without time", raw.Person))
	}
	if *raw.Time < 0 {
		return types.Event{}, perrors.NewValidationError(perrors.CodeMalformedRecord,
			fmt.Sprintf("normalize: negative time %d for %s", *raw.Time, raw.Person))
	}

	ev := types.Event{PersonID: raw.Person, Time: *raw.Time}

	kind, err := types.ParseEventKind(raw.Event)
	if err != nil {
		ev.Kind = types.KindUnknown
		ev.RawKind = raw.Event
		return ev, nil
	}
	ev.Kind = kind

	switch kind {
	case types.KindTransaction:
		amount, ok, err := number(raw.Value, KeyAmount)
		if err != nil {
			return types.Event{}, err
		}
		if !ok {
			return types.Event{}, perrors.NewValidationError(perrors.CodeMissingField,
				fmt.Sprintf("normalize: transaction for %s at %d without amount", raw.Person, ev.Time))
		}
		ev.Amount = amount
	case types.KindOfferCompleted:
		reward, ok, err := number(raw.Value, KeyReward)
		if err != nil {
			return types.Event{}, err
		}
		if !ok {
			return types.Event{}, perrors.NewValidationError(perrors.CodeMissingField,
				fmt.Sprintf("normalize: completion for %s at %d without reward", raw.Person, ev.Time))
		}
		ev.Reward = reward
		fallthrough
	default:
		id, err := MergeOfferID(raw.Value)
		if err != nil {
			return types.Event{}, err
		}
		ev.OfferID = id
	}

	return ev, nil
}

// MergeOfferID returns the received-style id when present and non-null,
// otherwise the viewed/completed-style id, otherwise "".
func MergeOfferID(value map[string]json.RawMessage) (string, error) {
	for _, key := range []string{KeyReceivedOfferID, KeyOfferID} {
		id, ok, err := str(value, key)
		if err != nil {
			return "", err
		}
		if ok {
			return id, nil
		}
	}
	return "", nil
}

// ReadTranscript streams a JSON-lines transcript and normalizes each record,
// preserving file order. The first malformed record aborts the read.
func ReadTranscript(r io.Reader) ([]types.Event, error) {
	var events []types.Event

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var raw RawEvent
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, perrors.Wrap(perrors.ErrCategoryValidation, perrors.CodeMalformedRecord,
				fmt.Sprintf("normalize: transcript line %d", line), err)
		}
		ev, err := Normalize(raw)
		if err != nil {
			var pe *perrors.ProfileError
			if errors.As(err, &pe) {
				return nil, pe.WithDetails(map[string]interface{}{"line": line})
			}
			return nil, err
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("normalize: failed to read transcript: %w", err)
	}

	return events, nil
}

// str decodes value[key] as a string. ok is false for a missing key or JSON null.
func str(value map[string]json.RawMessage, key string) (string, bool, error) {
	raw, present := value[key]
	if !present || isNull(raw) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, perrors.Wrap(perrors.ErrCategoryValidation, perrors.CodeMalformedRecord,
			fmt.Sprintf("normalize: field %q is not a string", key), err)
	}
	return s, s != "", nil
}

// number decodes value[key] as a float. ok is false for a missing key or JSON null.
func number(value map[string]json.RawMessage, key string) (float64, bool, error) {
	raw, present := value[key]
	if !present || isNull(raw) {
		return 0, false, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false, perrors.Wrap(perrors.ErrCategoryValidation, perrors.CodeMalformedRecord,
			fmt.Sprintf("normalize: field %q is not a number", key), err)
	}
	return f, true, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
