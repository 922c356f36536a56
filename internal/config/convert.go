package config

import (
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/pkg/meter_modbus"
)

func (e EntityConfig) ToEntity() domain.Entity {
	return domain.Entity{
		Id:          e.Id,
		Kind:        domain.EntityKind(e.Kind),
		Unit:        e.Unit,
		Domain:      e.Domain,
		Area:        e.Area,
		ConfigEntry: e.ConfigEntry,
	}.Normalized()
}

func (r RegisterConfig) ToRegister() meter_modbus.MeterRegister {
	kind := meter_modbus.RegisterKind(r.Kind)
	if kind == "" {
		kind = meter_modbus.REGISTER_HOLDING
	}
	return meter_modbus.MeterRegister{
		EntityId:    r.Entity,
		Address:     r.Address,
		Kind:        kind,
		Type:        meter_modbus.ValueType(r.Type),
		ScaleFactor: r.ScaleFactor,
		Unit:        r.Unit,
	}
}

func (m MeterConfig) MeterRegisters() []meter_modbus.MeterRegister {
	registers := make([]meter_modbus.MeterRegister, 0, len(m.Registers))
	for _, r := range m.Registers {
		registers = append(registers, r.ToRegister())
	}
	return registers
}

func (m MeterConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMillis) * time.Millisecond
}

func (m MeterConfig) Timeout() time.Duration {
	if m.TimeoutMillis == 0 {
		return time.Second
	}
	return time.Duration(m.TimeoutMillis) * time.Millisecond
}

func (c EnergyConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalSeconds) * time.Second
}

func (c StoreConfig) DumpInterval() time.Duration {
	return time.Duration(c.DumpIntervalSeconds) * time.Second
}
