package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

const (
	STORE_BACKEND_FILE   = "file"
	STORE_BACKEND_SQLITE = "sqlite"
)

type Config struct {
	LogLevel zapcore.Level
	MQTT     MQTTConfig   `mapstructure:"mqtt"`
	Energy   EnergyConfig `mapstructure:"energy"`
	Store    StoreConfig  `mapstructure:"store"`

	GroupsFile string         `mapstructure:"groups_file"`
	Entities   []EntityConfig `mapstructure:"entities"`
	Meters     []MeterConfig  `mapstructure:"meters"`

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`
}

type EnergyConfig struct {
	// none, kilo or mega
	UnitPrefix            string `mapstructure:"unit_prefix"`
	UpdateIntervalSeconds uint32 `mapstructure:"update_interval_seconds"`
}

type StoreConfig struct {
	Backend             string
	Path                string
	DumpIntervalSeconds uint32 `mapstructure:"dump_interval_seconds"`
}

type EntityConfig struct {
	Id          string `mapstructure:"id"`
	Kind        string `mapstructure:"kind"`
	Unit        string `mapstructure:"unit"`
	Domain      string `mapstructure:"domain"`
	Area        string `mapstructure:"area"`
	ConfigEntry string `mapstructure:"config_entry"`
}

type MeterConfig struct {
	Name               string
	Host               string
	Port               uint
	UnitId             uint8            `mapstructure:"unit_id"`
	PollIntervalMillis uint32           `mapstructure:"poll_interval_millis"`
	TimeoutMillis      uint32           `mapstructure:"timeout_millis"`
	Registers          []RegisterConfig `mapstructure:"registers"`
}

type RegisterConfig struct {
	Entity      string `mapstructure:"entity"`
	Address     uint16 `mapstructure:"address"`
	Kind        string `mapstructure:"kind"`
	Type        string `mapstructure:"type"`
	ScaleFactor int32  `mapstructure:"scale_factor"`
	Unit        string `mapstructure:"unit"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
