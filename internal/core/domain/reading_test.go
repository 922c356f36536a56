package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseReadingPayload(t *testing.T) {

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ts := time.Date(2024, 3, 1, 9, 59, 30, 0, time.UTC)

	tests := []struct {
		name     string
		entityId string
		payload  string
		want     Reading
		err      error
	}{
		{"bare number", "sensor.a", " 12.50 \n", Reading{EntityId: "sensor.a", State: "12.50", Timestamp: now}, nil},
		{"bare unavailable", "sensor.a", "unavailable", Reading{EntityId: "sensor.a", State: "unavailable", Timestamp: now}, nil},
		{"object with string state", "sensor.a", `{"state":"3.2","unit":"kW","timestamp":"2024-03-01T09:59:30Z"}`,
			Reading{EntityId: "sensor.a", State: "3.2", Unit: "kW", Timestamp: ts}, nil},
		{"object with number state keeps digits", "sensor.a", `{"state":1197.865543,"unit_of_measurement":"kWh"}`,
			Reading{EntityId: "sensor.a", State: "1197.865543", Unit: "kWh", Timestamp: now}, nil},
		{"entity id from payload", "", `{"entity_id":"sensor.b","state":"1"}`,
			Reading{EntityId: "sensor.b", State: "1", Timestamp: now}, nil},
		{"missing entity id", "", `{"state":"1"}`, Reading{}, ErrInvalidPayload},
		{"bare without entity id", "", "1", Reading{}, ErrInvalidPayload},
		{"broken json", "sensor.a", `{"state":`, Reading{}, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReadingPayload(tt.entityId, []byte(tt.payload), now)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadingAvailability(t *testing.T) {

	assert := assert.New(t)

	assert.True(Reading{State: "0"}.Available())
	assert.False(Reading{State: "Unavailable"}.Available())
	assert.False(Reading{State: "unknown"}.Available())
	assert.False(Reading{State: "  "}.Available())

	_, err := Reading{EntityId: "sensor.a", State: "abc"}.Decimal()
	assert.ErrorIs(err, ErrInvalidValue)
	v, err := Reading{State: " 1.50"}.Decimal()
	assert.NoError(err)
	assert.Equal("1.5", v.String())
}

func TestCheckShape(t *testing.T) {

	assert := assert.New(t)

	ok := NewGroupDefinition("kitchen_1", "Kitchen")
	assert.NoError(ok.CheckShape())

	bad := NewGroupDefinition("kitchen 1", "")
	assert.ErrorIs(bad.CheckShape(), ErrInvalidGroup)

	self := NewGroupDefinition("loop", "")
	self.SubGroups = []string{"loop"}
	assert.ErrorIs(self.CheckShape(), ErrCyclicGroup)

	sub := NewGroupDefinition("rest", "")
	sub.Kind = SubtractGroup{}
	assert.ErrorIs(sub.CheckShape(), ErrInvalidGroup)

	policy := NewGroupDefinition("p", "")
	policy.AllUnavailable = "maybe"
	assert.ErrorIs(policy.CheckShape(), ErrInvalidGroup)
}
