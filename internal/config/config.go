// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"

	"github.com/relabs-tech/sensors_bridge/internal/location"
)

// Source modes.
const (
	SourceModeHardware = "hardware"
	SourceModeMock     = "mock"
)

// Location permission policies.
const (
	PermissionAuto    = "auto" // granted when the GPS device is readable
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
)

// Config holds all application configuration values. Every field is
// settable from the config file and overridable from the environment
// under the same key.
type Config struct {
	SourceMode         string `env:"SOURCE_MODE" envDefault:"mock"`
	LocationPermission string `env:"LOCATION_PERMISSION" envDefault:"auto"`

	// GPS
	GPSSerialPort string  `env:"GPS_SERIAL_PORT" envDefault:"/dev/serial0"`
	GPSBaudRate   uint    `env:"GPS_BAUD_RATE" envDefault:"9600"`
	GPSUERE       float64 `env:"GPS_UERE_METERS" envDefault:"5.0"`

	// IMU Hardware
	IMUSPIDevice string `env:"IMU_SPI_DEVICE" envDefault:"/dev/spidev0.0"`
	IMUCSPin     string `env:"IMU_CS_PIN" envDefault:"8"`
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange    byte `env:"IMU_GYRO_RANGE" envDefault:"0"`
	IMUNativeRateHz int  `env:"IMU_NATIVE_RATE_HZ" envDefault:"200"`

	// Mock sources
	MockLatitude    float64 `env:"MOCK_LATITUDE" envDefault:"37.0"`
	MockLongitude   float64 `env:"MOCK_LONGITUDE" envDefault:"-122.0"`
	MockGyroPresent bool    `env:"MOCK_GYRO_PRESENT" envDefault:"true"`

	// Session defaults for start requests that omit keys
	LocationIntervalMs int    `env:"LOCATION_INTERVAL_MS" envDefault:"1000"`
	GyroIntervalMs     int    `env:"GYRO_INTERVAL_MS" envDefault:"50"`
	LocationAccuracy   string `env:"LOCATION_ACCURACY" envDefault:"high"`

	// MQTT, empty broker disables the publisher
	MQTTBroker          string `env:"MQTT_BROKER"`
	MQTTClientIDBridge  string `env:"MQTT_CLIENT_ID_BRIDGE" envDefault:"sensors-bridge"`
	MQTTClientIDConsole string `env:"MQTT_CLIENT_ID_CONSOLE" envDefault:"sensors-bridge-console"`
	MQTTClientIDDisplay string `env:"MQTT_CLIENT_ID_DISPLAY" envDefault:"sensors-bridge-display"`

	// Topics
	TopicLocationUpdate string `env:"TOPIC_LOCATION_UPDATE" envDefault:"sensors/location"`
	TopicGyroUpdate     string `env:"TOPIC_GYRO_UPDATE" envDefault:"sensors/gyro"`
	TopicLocationError  string `env:"TOPIC_LOCATION_ERROR" envDefault:"sensors/location/error"`
	TopicGyroError      string `env:"TOPIC_GYRO_ERROR" envDefault:"sensors/gyro/error"`

	// Kafka, empty broker list disables the publisher
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"sensors-bridge-events"`

	// Web Server
	WebServerPort int `env:"WEB_SERVER_PORT" envDefault:"8080"`

	// Display
	DisplayUpdateInterval int `env:"DISPLAY_UPDATE_INTERVAL" envDefault:"500"` // milliseconds

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file, applies environment overrides and
// defaults, and validates the result. An empty path skips the file.
func Load(configPath string) (*Config, error) {
	return load(configPath, os.Environ())
}

func load(configPath string, environ []string) (*Config, error) {
	known := knownKeys()
	values := make(map[string]string)

	if configPath != "" {
		fileValues, err := readFile(configPath, known)
		if err != nil {
			return nil, err
		}
		for k, v := range fileValues {
			values[k] = v
		}
	}

	// Environment wins over the file; an empty value clears the key.
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !known[key] {
			continue
		}
		if value == "" {
			delete(values, key)
			continue
		}
		values[key] = value
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: values}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFile parses KEY=VALUE lines. Blank lines and # comments are skipped.
func readFile(configPath string, known map[string]bool) (map[string]string, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}
		key = strings.TrimSpace(key)
		if !known[key] {
			return nil, fmt.Errorf("config line %d: unknown config key: %q", lineNum, key)
		}
		if value = strings.TrimSpace(value); value != "" {
			values[key] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return values, nil
}

func knownKeys() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if key, _, _ := strings.Cut(t.Field(i).Tag.Get("env"), ","); key != "" {
			keys[key] = true
		}
	}
	return keys
}

// validate checks value ranges and enumerations.
func (c *Config) validate() error {
	switch c.SourceMode {
	case SourceModeHardware, SourceModeMock:
	default:
		return fmt.Errorf("SOURCE_MODE must be %q or %q, got %q", SourceModeHardware, SourceModeMock, c.SourceMode)
	}
	switch c.LocationPermission {
	case PermissionAuto, PermissionGranted, PermissionDenied:
	default:
		return fmt.Errorf("LOCATION_PERMISSION must be auto, granted or denied, got %q", c.LocationPermission)
	}
	if c.GPSBaudRate == 0 {
		return fmt.Errorf("GPS_BAUD_RATE is required")
	}
	if c.GPSUERE <= 0 {
		return fmt.Errorf("GPS_UERE_METERS must be positive, got %g", c.GPSUERE)
	}
	if c.IMUGyroRange > 3 {
		return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", c.IMUGyroRange)
	}
	if c.IMUNativeRateHz <= 0 {
		return fmt.Errorf("IMU_NATIVE_RATE_HZ must be positive, got %d", c.IMUNativeRateHz)
	}
	if c.MockLatitude < -90 || c.MockLatitude > 90 {
		return fmt.Errorf("MOCK_LATITUDE out of range: %g", c.MockLatitude)
	}
	if c.MockLongitude < -180 || c.MockLongitude > 180 {
		return fmt.Errorf("MOCK_LONGITUDE out of range: %g", c.MockLongitude)
	}
	if c.LocationIntervalMs < 0 || c.GyroIntervalMs < 0 {
		return fmt.Errorf("LOCATION_INTERVAL_MS and GYRO_INTERVAL_MS must not be negative")
	}
	if _, err := location.ParseAccuracy(c.LocationAccuracy); err != nil {
		return fmt.Errorf("LOCATION_ACCURACY: %w", err)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT out of range: %d", c.WebServerPort)
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	return nil
}

// InitGlobal initializes the global configuration. Only the first call
// has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
