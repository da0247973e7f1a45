package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	MQTT     MQTTConfig `mapstructure:"mqtt"`

	DevicesFile     string          `mapstructure:"devices_file"`
	EnableVirtual   bool            `mapstructure:"enable_virtual"`
	CommandConfig   CommandConfig   `mapstructure:"command"`
	CycleConfig     CycleConfig     `mapstructure:"cycle"`
	DiscoveryConfig DiscoveryConfig `mapstructure:"discovery"`
	MonitorConfig   MonitorConfig   `mapstructure:"monitor"`
	Port            uint            `mapstructure:"port"`
	HttpLog         bool            `mapstructure:"http_log"`
}

type CommandConfig struct {
	TimeoutMillis        uint32 `mapstructure:"timeout_millis"`
	DuplicateDelayMillis uint32 `mapstructure:"duplicate_delay_millis"`
}

type CycleConfig struct {
	MaxSteps        uint32 `mapstructure:"max_steps"`
	StepDelayMillis uint32 `mapstructure:"step_delay_millis"`
}

type DiscoveryConfig struct {
	ProbeTimeoutMillis uint32 `mapstructure:"probe_timeout_millis"`
	BaseNetwork        string `mapstructure:"base_network"`
	FirstHost          uint   `mapstructure:"first_host"`
	LastHost           uint   `mapstructure:"last_host"`
	Parallel           uint   `mapstructure:"parallel"`
	RescanCron         string `mapstructure:"rescan_cron"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

type MQTTConfig struct {
	Enable            bool
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
