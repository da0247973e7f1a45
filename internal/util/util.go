package util

import (
	"beamctl/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "beamctl",
		},
		EnableVirtual: true,
		CommandConfig: config.CommandConfig{
			TimeoutMillis:        2000,
			DuplicateDelayMillis: 100,
		},
		CycleConfig: config.CycleConfig{
			MaxSteps:        12,
			StepDelayMillis: 50,
		},
		DiscoveryConfig: config.DiscoveryConfig{
			ProbeTimeoutMillis: 500,
			BaseNetwork:        "127.0.0",
			FirstHost:          1,
			LastHost:           1,
			Parallel:           4,
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 5000,
		},
		Port: 8080,
	}
}
