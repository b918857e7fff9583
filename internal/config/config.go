// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	OTA     OTAConfig     `mapstructure:"ota"`
	Logging LoggingConfig `mapstructure:"logging"`
	App     AppConfig     `mapstructure:"app"`
}

// DeviceConfig represents how the console reaches the device
type DeviceConfig struct {
	Host             string           `mapstructure:"host" validate:"required"`
	Port             int              `mapstructure:"port" validate:"required"`
	Token            string           `mapstructure:"token"`
	Transport        string           `mapstructure:"transport"`
	ConnectTimeout   time.Duration    `mapstructure:"connect_timeout"`
	ReconnectTimeout time.Duration    `mapstructure:"reconnect_timeout"`
	ReplyBufferSize  int              `mapstructure:"reply_buffer_size"`
	KeepAlive        bool             `mapstructure:"keep_alive"`
	Serial           SerialPortConfig `mapstructure:"serial"`
}

// SerialPortConfig represents serial port configuration
type SerialPortConfig struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	StopBits int    `mapstructure:"stop_bits"`
	Parity   string `mapstructure:"parity"`
}

// OTAConfig represents firmware transfer tuning
type OTAConfig struct {
	ChunkSize     int           `mapstructure:"chunk_size"`
	AckBufferSize int           `mapstructure:"ack_buffer_size"`
	RebootDelay   time.Duration `mapstructure:"reboot_delay"`
	VerifyVersion bool          `mapstructure:"verify_version"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Prompt  string `mapstructure:"prompt"`
}

// Transport names accepted in device.transport
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

// Load loads configuration from an optional file and environment variables.
// An empty path searches the working directory for config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment variable support
	v.SetEnvPrefix("LOPY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The short names predate the config file and are what operators export.
	_ = v.BindEnv("device.host", "LOPY_ADDR")
	_ = v.BindEnv("device.port", "LOPY_PORT")
	_ = v.BindEnv("device.token", "LOPY_TOKEN")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Device defaults
	v.SetDefault("device.host", "192.168.10.125")
	v.SetDefault("device.port", 8080)
	v.SetDefault("device.token", "hunter2")
	v.SetDefault("device.transport", TransportTCP)
	v.SetDefault("device.connect_timeout", "5s")
	v.SetDefault("device.reconnect_timeout", "10s")
	v.SetDefault("device.reply_buffer_size", 256)
	v.SetDefault("device.keep_alive", true)

	v.SetDefault("device.serial.port", "")
	v.SetDefault("device.serial.baud_rate", 115200)
	v.SetDefault("device.serial.data_bits", 8)
	v.SetDefault("device.serial.stop_bits", 1)
	v.SetDefault("device.serial.parity", "none")

	// OTA defaults
	v.SetDefault("ota.chunk_size", 1024)
	v.SetDefault("ota.ack_buffer_size", 64)
	v.SetDefault("ota.reboot_delay", "5s")
	v.SetDefault("ota.verify_version", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// App defaults
	v.SetDefault("app.name", "ota-console")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.prompt", "LoPy> ")
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Device.Transport {
	case TransportTCP:
		if config.Device.Host == "" {
			return fmt.Errorf("device.host is required")
		}
		if config.Device.Port < 1 || config.Device.Port > 65535 {
			return fmt.Errorf("invalid device.port: %d", config.Device.Port)
		}
	case TransportSerial:
		if config.Device.Serial.Port == "" {
			return fmt.Errorf("device.serial.port is required for serial transport")
		}
	default:
		return fmt.Errorf("device.transport must be one of: %v", []string{TransportTCP, TransportSerial})
	}

	if config.Device.ConnectTimeout <= 0 {
		return fmt.Errorf("device.connect_timeout must be positive")
	}
	if config.Device.ReconnectTimeout <= 0 {
		return fmt.Errorf("device.reconnect_timeout must be positive")
	}
	if config.Device.ReplyBufferSize <= 0 {
		return fmt.Errorf("device.reply_buffer_size must be positive")
	}
	if config.OTA.ChunkSize <= 0 {
		return fmt.Errorf("ota.chunk_size must be positive")
	}
	if config.OTA.AckBufferSize <= 0 {
		return fmt.Errorf("ota.ack_buffer_size must be positive")
	}
	if config.OTA.RebootDelay < 0 {
		return fmt.Errorf("ota.reboot_delay must not be negative")
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetDeviceAddr returns the device address in host:port form
func (c *Config) GetDeviceAddr() string {
	return net.JoinHostPort(c.Device.Host, strconv.Itoa(c.Device.Port))
}

// IsSerial reports whether the device is reached over a serial line
func (c *Config) IsSerial() bool {
	return c.Device.Transport == TransportSerial
}
