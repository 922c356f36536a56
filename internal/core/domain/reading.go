package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	STATE_UNAVAILABLE = "unavailable"
	STATE_UNKNOWN     = "unknown"
)

// Reading is one state change of a source entity.
type Reading struct {
	EntityId  string
	State     string
	Unit      string
	Timestamp time.Time
}

func (r Reading) Available() bool {
	s := strings.TrimSpace(r.State)
	return s != "" && !strings.EqualFold(s, STATE_UNAVAILABLE) && !strings.EqualFold(s, STATE_UNKNOWN)
}

// Decimal parses the state. Callers check Available first.
func (r Reading) Decimal() (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(r.State))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrInvalidValue, r.EntityId, r.State)
	}
	return v, nil
}

type readingPayload struct {
	EntityId          string     `json:"entity_id"`
	State             flexState  `json:"state"`
	Unit              string     `json:"unit"`
	UnitOfMeasurement string     `json:"unit_of_measurement"`
	Timestamp         *time.Time `json:"timestamp"`
}

// flexState accepts both "12.5" and 12.5 so numbers keep their exact digits.
type flexState string

func (s *flexState) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexState(str)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*s = flexState(n.String())
	}
	return nil
}

// ParseReadingPayload decodes either a bare state ("12.5", "unavailable") or a
// JSON object {"entity_id", "state", "unit", "timestamp"}. entityId wins over
// the payload's entity_id when both are set.
func ParseReadingPayload(entityId string, payload []byte, now time.Time) (Reading, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var p readingPayload
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return Reading{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		r := Reading{
			EntityId:  entityId,
			State:     string(p.State),
			Unit:      p.Unit,
			Timestamp: now,
		}
		if r.EntityId == "" {
			r.EntityId = p.EntityId
		}
		if r.Unit == "" {
			r.Unit = p.UnitOfMeasurement
		}
		if p.Timestamp != nil {
			r.Timestamp = *p.Timestamp
		}
		if r.EntityId == "" {
			return Reading{}, fmt.Errorf("%w: missing entity_id", ErrInvalidPayload)
		}
		return r, nil
	}
	if entityId == "" {
		return Reading{}, fmt.Errorf("%w: missing entity_id", ErrInvalidPayload)
	}
	return Reading{
		EntityId:  entityId,
		State:     string(trimmed),
		Timestamp: now,
	}, nil
}
