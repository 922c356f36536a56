package meter_modbus

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

// ModbusMeterReader reads a fixed register map from one modbus TCP unit.
type ModbusMeterReader struct {
	name       string
	client     *modbus.ModbusClient
	registers  []MeterRegister
	instrument []ModbusInstrument
	now        func() time.Time
}

func CreateModbusMeterReader(name, host string, port uint, unitId uint8, timeout time.Duration,
	registers []MeterRegister, logger *zap.Logger, instrumentation *ModbusInstrument) (MeterReader, error) {
	for _, r := range registers {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("meter %s: %w", name, err)
		}
	}
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := client.SetUnitId(unitId); err != nil {
		return nil, err
	}
	if err := client.SetEncoding(modbus.BIG_ENDIAN, modbus.HIGH_WORD_FIRST); err != nil {
		return nil, err
	}

	inst := []ModbusInstrument{traceLoggerInstrumentation(logger.With(zap.String("meter", name), zap.Uint8("unit", unitId)))}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	return &ModbusMeterReader{
		name:       name,
		client:     client,
		registers:  registers,
		instrument: inst,
		now:        time.Now,
	}, nil
}

func (reader *ModbusMeterReader) Open() error {
	return reader.client.Open()
}

func (reader *ModbusMeterReader) Close() error {
	return reader.client.Close()
}

func (reader *ModbusMeterReader) Name() string {
	return reader.name
}

func (reader *ModbusMeterReader) EntityIds() []string {
	ids := make([]string, len(reader.registers))
	for i, r := range reader.registers {
		ids[i] = r.EntityId
	}
	return ids
}

// ReadAll reads every register. The first failing register aborts the read.
func (reader *ModbusMeterReader) ReadAll() ([]RegisterValue, error) {
	values := make([]RegisterValue, 0, len(reader.registers))
	for _, r := range reader.registers {
		v, err := reader.read(r)
		if err != nil {
			return nil, fmt.Errorf("meter %s register %d: %w", reader.name, r.Address, err)
		}
		values = append(values, RegisterValue{
			EntityId: r.EntityId,
			Value:    v,
			Unit:     r.Unit,
			ReadAt:   reader.now(),
		})
	}
	return values, nil
}

func (reader *ModbusMeterReader) read(r MeterRegister) (decimal.Decimal, error) {
	regType := modbus.HOLDING_REGISTER
	if r.Kind == REGISTER_INPUT {
		regType = modbus.INPUT_REGISTER
	}
	switch r.Type {
	case VALUE_TYPE_UINT16:
		defer RecordTimer("ReadRegister", reader.instrument)()
		raw, err := reader.client.ReadRegister(r.Address, regType)
		if err != nil {
			return decimal.Zero, err
		}
		return ApplyScaleFactor(decimal.NewFromInt(int64(raw)), r.ScaleFactor), nil
	case VALUE_TYPE_INT16:
		defer RecordTimer("ReadRegister", reader.instrument)()
		raw, err := reader.client.ReadRegister(r.Address, regType)
		if err != nil {
			return decimal.Zero, err
		}
		return ApplyScaleFactor(decimal.NewFromInt(int64(int16(raw))), r.ScaleFactor), nil
	case VALUE_TYPE_UINT32:
		defer RecordTimer("ReadUint32", reader.instrument)()
		raw, err := reader.client.ReadUint32(r.Address, regType)
		if err != nil {
			return decimal.Zero, err
		}
		return ApplyScaleFactor(decimal.NewFromInt(int64(raw)), r.ScaleFactor), nil
	case VALUE_TYPE_INT32:
		defer RecordTimer("ReadUint32", reader.instrument)()
		raw, err := reader.client.ReadUint32(r.Address, regType)
		if err != nil {
			return decimal.Zero, err
		}
		return ApplyScaleFactor(decimal.NewFromInt(int64(int32(raw))), r.ScaleFactor), nil
	case VALUE_TYPE_FLOAT32:
		defer RecordTimer("ReadFloat32", reader.instrument)()
		raw, err := reader.client.ReadFloat32(r.Address, regType)
		if err != nil {
			return decimal.Zero, err
		}
		return Float32ToDecimal(raw, r.ScaleFactor)
	}
	return decimal.Zero, fmt.Errorf("unsupported type %q", r.Type)
}

// ApplyScaleFactor multiplies v by 10^sf without going through floats.
func ApplyScaleFactor(v decimal.Decimal, sf int32) decimal.Decimal {
	return v.Shift(sf)
}

// Float32ToDecimal keeps the shortest representation of the float32 so 230.1
// does not turn into 230.100006.
func Float32ToDecimal(f float32, sf int32) (decimal.Decimal, error) {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return decimal.Zero, fmt.Errorf("invalid float value %v", f)
	}
	return ApplyScaleFactor(decimal.NewFromFloat32(f), sf), nil
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) ModbusInstrument {
	return ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus read", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}
