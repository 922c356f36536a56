package meter_modbus

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// TestMeterReader serves fixed values. Energy registers grow by Step on every read.
type TestMeterReader struct {
	mu     sync.Mutex
	name   string
	values []RegisterValue
	step   decimal.Decimal
	fail   bool
}

func CreateTestMeterReader(name string, values ...RegisterValue) *TestMeterReader {
	return &TestMeterReader{
		name:   name,
		values: values,
		step:   decimal.Zero,
	}
}

func (reader *TestMeterReader) WithStep(step decimal.Decimal) *TestMeterReader {
	reader.step = step
	return reader
}

func (reader *TestMeterReader) SetFailing(fail bool) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.fail = fail
}

func (reader *TestMeterReader) Open() error {
	return nil
}

func (reader *TestMeterReader) Close() error {
	return nil
}

func (reader *TestMeterReader) Name() string {
	return reader.name
}

func (reader *TestMeterReader) EntityIds() []string {
	ids := make([]string, len(reader.values))
	for i, v := range reader.values {
		ids[i] = v.EntityId
	}
	return ids
}

func (reader *TestMeterReader) ReadAll() ([]RegisterValue, error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	if reader.fail {
		return nil, errors.New("modbus: request timed out")
	}
	now := time.Now()
	out := make([]RegisterValue, len(reader.values))
	for i := range reader.values {
		out[i] = reader.values[i]
		out[i].ReadAt = now
		reader.values[i].Value = reader.values[i].Value.Add(reader.step)
	}
	return out, nil
}
