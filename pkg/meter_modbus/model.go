package meter_modbus

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ValueType string

const (
	VALUE_TYPE_UINT16  ValueType = "uint16"
	VALUE_TYPE_INT16   ValueType = "int16"
	VALUE_TYPE_UINT32  ValueType = "uint32"
	VALUE_TYPE_INT32   ValueType = "int32"
	VALUE_TYPE_FLOAT32 ValueType = "float32"
)

type RegisterKind string

const (
	REGISTER_HOLDING RegisterKind = "holding"
	REGISTER_INPUT   RegisterKind = "input"
)

// MeterRegister maps one modbus register to a source entity.
// The raw value is multiplied by 10^ScaleFactor.
type MeterRegister struct {
	EntityId    string
	Address     uint16
	Kind        RegisterKind
	Type        ValueType
	ScaleFactor int32
	Unit        string
}

func (r MeterRegister) Validate() error {
	switch r.Type {
	case VALUE_TYPE_UINT16, VALUE_TYPE_INT16, VALUE_TYPE_UINT32, VALUE_TYPE_INT32, VALUE_TYPE_FLOAT32:
	default:
		return fmt.Errorf("register %d: unsupported type %q", r.Address, r.Type)
	}
	switch r.Kind {
	case "", REGISTER_HOLDING, REGISTER_INPUT:
	default:
		return fmt.Errorf("register %d: unsupported register kind %q", r.Address, r.Kind)
	}
	if r.EntityId == "" {
		return fmt.Errorf("register %d: missing entity id", r.Address)
	}
	return nil
}

// RegisterValue is a scaled register read.
type RegisterValue struct {
	EntityId string
	Value    decimal.Decimal
	Unit     string
	ReadAt   time.Time
}

type MeterReader interface {
	Open() error
	Close() error
	Name() string
	// EntityIds lists the entities fed by this meter, in register order.
	EntityIds() []string
	ReadAll() ([]RegisterValue, error)
}
