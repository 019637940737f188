package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// UARTConfig describes a serial transport: either a device path or a
// USB VID/PID pair for enumerator-based discovery.
type UARTConfig struct {
	DevicePath string `toml:"device_path"`
	VID        string `toml:"vid"`
	PID        string `toml:"pid"`
	BaudRate   int    `toml:"baud_rate"`
	ReadBuffer int    `toml:"read_buffer"`
}

// EndpointConfig describes one Endpoint: which layout it binds, which
// CRC algorithm to use, the transport it rides on, and the dispatch
// queue's bounded capacity.
type EndpointConfig struct {
	Name          string     `toml:"name"`
	Layout        string     `toml:"layout"`
	CrcAlgorithm  string     `toml:"crc_algorithm"`
	Transport     string     `toml:"transport"`
	QueueCapacity int        `toml:"queue_capacity"`
	Debug         bool       `toml:"debug"`
	UART          UARTConfig `toml:"uart"`
}

func LoadEndpointConfig(path string) (EndpointConfig, error) {
	var cfg EndpointConfig
	if err := loadToml(path, &cfg); err != nil {
		return EndpointConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "wireframe-endpoint"
	}
	if cfg.CrcAlgorithm == "" {
		cfg.CrcAlgorithm = "crc32-ieee"
	}
	if cfg.Transport == "" {
		cfg.Transport = "echo"
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = 100
	}
	if cfg.UART.BaudRate == 0 {
		cfg.UART.BaudRate = 115200
	}
	if cfg.UART.ReadBuffer == 0 {
		cfg.UART.ReadBuffer = 1000
	}
	if err := ValidateEndpointConfig(cfg); err != nil {
		return EndpointConfig{}, err
	}
	return cfg, nil
}

func ValidateEndpointConfig(cfg EndpointConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("endpoint config missing name")
	}
	if strings.TrimSpace(cfg.Layout) == "" {
		return fmt.Errorf("endpoint config missing layout")
	}
	switch cfg.Transport {
	case "echo":
	case "uart":
		if strings.TrimSpace(cfg.UART.DevicePath) == "" &&
			(strings.TrimSpace(cfg.UART.VID) == "" || strings.TrimSpace(cfg.UART.PID) == "") {
			return fmt.Errorf("uart transport requires device_path or both vid and pid")
		}
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if cfg.QueueCapacity <= 0 {
		return fmt.Errorf("endpoint config queue_capacity must be positive")
	}
	return nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
