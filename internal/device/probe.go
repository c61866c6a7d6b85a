// Package device detects whether an accelerator is available.
package device

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Device kinds. ROCm devices are addressed through the cuda kind, the same
// way the training runtime exposes them.
const (
	KindCUDA = "cuda"
	KindCPU  = "cpu"
)

// Device describes the compute device selected for a run.
type Device struct {
	Kind   string `json:"kind"`
	Vendor string `json:"vendor,omitempty"`
	Count  int    `json:"count"`
	Name   string `json:"name,omitempty"`
	Driver string `json:"driver,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// Accelerated reports whether the device is a GPU.
func (d Device) Accelerated() bool { return d.Kind == KindCUDA }

func (d Device) String() string { return d.Kind }

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Probe checks for an NVIDIA GPU, then an AMD GPU, and otherwise falls back to
// the CPU. It never fails.
func Probe(ctx context.Context, r Runner, log zerolog.Logger) Device {
	if r == nil {
		r = ExecRunner{}
	}
	if d, ok := probeNVIDIA(ctx, r); ok {
		log.Info().Int("count", d.Count).Str("name", d.Name).Str("vendor", d.Vendor).Msg("CUDA is available")
		return d
	}
	if d, ok := probeROCm(ctx, r); ok {
		log.Info().Int("count", d.Count).Str("name", d.Name).Str("vendor", d.Vendor).Msg("CUDA is available")
		return d
	}
	log.Warn().Msg("No compatible GPU found. Using CPU.")
	return Device{Kind: KindCPU}
}

func probeNVIDIA(ctx context.Context, r Runner) (Device, bool) {
	out, err := r.Run(ctx, "nvidia-smi", "--query-gpu=gpu_name,driver_version,memory.total", "--format=csv,noheader")
	if err != nil {
		return Device{}, false
	}
	return parseNVIDIA(string(out))
}

// parseNVIDIA reads one CSV line per GPU: "name, driver, memory".
func parseNVIDIA(out string) (Device, bool) {
	var d Device
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d.Count++
		if d.Count > 1 {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		d.Name = parts[0]
		if len(parts) > 1 {
			d.Driver = parts[1]
		}
		if len(parts) > 2 {
			d.Memory = parts[2]
		}
	}
	if d.Count == 0 {
		return Device{}, false
	}
	d.Kind = KindCUDA
	d.Vendor = "nvidia"
	return d, true
}

func probeROCm(ctx context.Context, r Runner) (Device, bool) {
	out, err := r.Run(ctx, "rocm-smi", "--showproductname", "--showdriver", "--showmeminfo", "vram")
	if err != nil {
		return Device{}, false
	}
	return parseROCm(string(out))
}

var (
	rocmGPURe    = regexp.MustCompile(`GPU\[(\d+)\]\s*:\s*Card (?:series|SKU|model)\s*:\s*(.+)`)
	rocmAnyGPURe = regexp.MustCompile(`GPU\[(\d+)\]`)
	rocmDriverRe = regexp.MustCompile(`Driver version:\s*(.+)`)
	rocmMemRe    = regexp.MustCompile(`VRAM Total Memory \(B\):\s*(\d+)`)
)

func parseROCm(out string) (Device, bool) {
	ids := map[string]struct{}{}
	for _, m := range rocmAnyGPURe.FindAllStringSubmatch(out, -1) {
		ids[m[1]] = struct{}{}
	}
	if len(ids) == 0 {
		return Device{}, false
	}
	d := Device{Kind: KindCUDA, Vendor: "amd", Count: len(ids)}
	if m := rocmGPURe.FindStringSubmatch(out); m != nil {
		d.Name = strings.TrimSpace(m[2])
	}
	if m := rocmDriverRe.FindStringSubmatch(out); m != nil {
		d.Driver = strings.TrimSpace(m[1])
	}
	if m := rocmMemRe.FindStringSubmatch(out); m != nil {
		if b, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			d.Memory = strconv.FormatInt(b>>20, 10) + " MiB"
		}
	}
	return d, true
}
