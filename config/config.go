package config

import "log"

type Config struct {
	EnvConfig *EnvConfig
}

func NewConfig() *Config {
	envConfig, err := LoadEnvConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return &Config{
		EnvConfig: envConfig,
	}
}
