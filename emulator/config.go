package emulator

import (
	"encoding/json"
	"fmt"
	"os"
)

// OSConfig describes the process environment the loader builds for the
// guest.
type OSConfig struct {
	// StackAddress is the page-aligned base of the stack mapping; the stack
	// grows down from StackAddress+StackSize.
	StackAddress uint64 `json:"stack_address"`
	StackSize    uint64 `json:"stack_size"`
}

// EmulatorConfig holds the tracing-side settings.
type EmulatorConfig struct {
	// VerifyMemory enables the per-instruction shadow-memory consistency
	// assertions. Always on in verification runs; can be disabled for
	// throughput-sensitive deployments.
	VerifyMemory bool `json:"verify_memory"`
	// OutputDir is the default directory for exported trace bundles.
	OutputDir string `json:"output_dir,omitempty"`
}

// Config is the top-level configuration, read from a JSON file.
type Config struct {
	OS       OSConfig       `json:"os"`
	Emulator EmulatorConfig `json:"emulator"`
}

// DefaultConfig returns the configuration used when no file is given: an 8
// MiB stack just under the 2 GiB line and verification enabled.
func DefaultConfig() Config {
	return Config{
		OS: OSConfig{
			StackAddress: 0x7f80_0000,
			StackSize:    0x80_0000,
		},
		Emulator: EmulatorConfig{
			VerifyMemory: true,
			OutputDir:    "trace_output",
		},
	}
}

// LoadConfig reads a JSON config file. Missing fields fall back to the
// defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse config %s: %w", path, err)
	}
	return config, nil
}
