package meter_modbus

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestApplyScaleFactor(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("12.34", ApplyScaleFactor(decimal.NewFromInt(1234), -2).String())
	assert.Equal("45000", ApplyScaleFactor(decimal.NewFromInt(45), 3).String())
	assert.Equal("-3", ApplyScaleFactor(decimal.NewFromInt(-3), 0).String())
}

func TestFloat32ToDecimal(t *testing.T) {

	assert := assert.New(t)

	v, err := Float32ToDecimal(230.1, 0)
	assert.NoError(err)
	assert.Equal("230.1", v.String())

	v, err = Float32ToDecimal(1197.5, -3)
	assert.NoError(err)
	assert.Equal("1.1975", v.String())

	_, err = Float32ToDecimal(float32(math.NaN()), 0)
	assert.Error(err)
}

func TestRegisterValidate(t *testing.T) {

	assert := assert.New(t)

	ok := MeterRegister{EntityId: "sensor.heatpump_power", Address: 40087, Type: VALUE_TYPE_INT16}
	assert.NoError(ok.Validate())

	assert.Error(MeterRegister{EntityId: "sensor.x", Type: "float64"}.Validate())
	assert.Error(MeterRegister{EntityId: "sensor.x", Type: VALUE_TYPE_UINT16, Kind: "coil"}.Validate())
	assert.Error(MeterRegister{Type: VALUE_TYPE_UINT16}.Validate())

	_, err := CreateModbusMeterReader("bad", "127.0.0.1", 502, 1, 0,
		[]MeterRegister{{EntityId: "sensor.x", Type: "double"}}, zap.NewNop(), nil)
	assert.Error(err)
}

func TestTestMeterReader(t *testing.T) {

	assert := assert.New(t)

	reader := CreateTestMeterReader("heatpump", RegisterValue{
		EntityId: "sensor.heatpump_energy",
		Value:    decimal.RequireFromString("100.5"),
		Unit:     "kWh",
	}).WithStep(decimal.RequireFromString("0.25"))

	first, err := reader.ReadAll()
	assert.NoError(err)
	second, err := reader.ReadAll()
	assert.NoError(err)
	assert.Equal("100.5", first[0].Value.String())
	assert.Equal("100.75", second[0].Value.String())
	assert.False(second[0].ReadAt.IsZero())

	reader.SetFailing(true)
	_, err = reader.ReadAll()
	assert.Error(err)
}
