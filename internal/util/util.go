package util

import (
	"github.com/berfenger/powergroup2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "powergroup",
		},
		Energy: config.EnergyConfig{
			UnitPrefix:            "kilo",
			UpdateIntervalSeconds: 0,
		},
		Store: config.StoreConfig{
			Backend:             config.STORE_BACKEND_FILE,
			DumpIntervalSeconds: 60,
		},
		Entities: []config.EntityConfig{
			{Id: "sensor.fridge_power", Kind: "power", Unit: "W", Area: "kitchen"},
			{Id: "sensor.fridge_energy", Kind: "energy", Unit: "kWh", Area: "kitchen"},
			{Id: "light.kitchen_power", Kind: "power", Unit: "W", Domain: "light", Area: "kitchen"},
		},
		Port: 8080,
	}
}
