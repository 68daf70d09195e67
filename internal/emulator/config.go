package emulator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the machine description. A zero TimerFreqHz or framebuffer
// dimension selects the device default; MemoryMB must be positive.
type Config struct {
	// MemoryMB is the DRAM size in MiB.
	MemoryMB uint64 `yaml:"memory_mb"`

	// TimerFreqHz is the CLINT timebase.
	TimerFreqHz uint64 `yaml:"timer_freq_hz"`

	// Disk optionally attaches a virtio block device backed by this image
	// path; the image is created at DiskCreateMB MiB when missing.
	Disk         string `yaml:"disk"`
	DiskCreateMB int64  `yaml:"disk_create_mb"`

	// Flash optionally maps a CFI flash region backed by this image path.
	Flash string `yaml:"flash"`

	// Framebuffer enables the simple framebuffer device.
	Framebuffer       bool `yaml:"framebuffer"`
	FramebufferWidth  int  `yaml:"framebuffer_width"`
	FramebufferHeight int  `yaml:"framebuffer_height"`

	// Headless suppresses the interactive console.
	Headless bool `yaml:"headless"`

	// TraceInstructions logs each decoded instruction name; very slow.
	TraceInstructions bool `yaml:"trace_instructions"`
}

// DefaultConfig is a 128 MiB machine without disk, flash or framebuffer.
func DefaultConfig() Config {
	return Config{
		MemoryMB:     128,
		DiskCreateMB: 64,
	}
}

// LoadConfig reads a YAML machine description, overlaying the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("emulator: read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("emulator: parse config %q: %w", path, err)
	}

	if cfg.MemoryMB == 0 {
		return cfg, fmt.Errorf("emulator: config %q: memory_mb must be positive", path)
	}
	return cfg, nil
}
