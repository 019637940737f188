package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadEndpointConfigAppliesDefaults(t *testing.T) {
	path := writeTemp(t, `layout = "simple"`)
	cfg, err := LoadEndpointConfig(path)
	if err != nil {
		t.Fatalf("LoadEndpointConfig: %v", err)
	}
	if cfg.Name != "wireframe-endpoint" {
		t.Errorf("Name default = %q, want wireframe-endpoint", cfg.Name)
	}
	if cfg.CrcAlgorithm != "crc32-ieee" {
		t.Errorf("CrcAlgorithm default = %q, want crc32-ieee", cfg.CrcAlgorithm)
	}
	if cfg.Transport != "echo" {
		t.Errorf("Transport default = %q, want echo", cfg.Transport)
	}
	if cfg.QueueCapacity != 100 {
		t.Errorf("QueueCapacity default = %d, want 100", cfg.QueueCapacity)
	}
}

func TestLoadEndpointConfigRejectsMissingLayout(t *testing.T) {
	path := writeTemp(t, `name = "x"`)
	_, err := LoadEndpointConfig(path)
	if err == nil {
		t.Fatalf("expected error for missing layout")
	}
}

func TestLoadEndpointConfigRejectsUARTWithoutAddressing(t *testing.T) {
	path := writeTemp(t, `
layout = "simple"
transport = "uart"
`)
	_, err := LoadEndpointConfig(path)
	if err == nil {
		t.Fatalf("expected error for uart transport with no device_path or vid/pid")
	}
}

func TestLoadEndpointConfigAcceptsUARTWithDevicePath(t *testing.T) {
	path := writeTemp(t, `
layout = "simple"
transport = "uart"

[uart]
device_path = "/dev/ttyUSB0"
`)
	cfg, err := LoadEndpointConfig(path)
	if err != nil {
		t.Fatalf("LoadEndpointConfig: %v", err)
	}
	if cfg.UART.BaudRate != 115200 {
		t.Errorf("UART.BaudRate default = %d, want 115200", cfg.UART.BaudRate)
	}
}
