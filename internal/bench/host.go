package bench

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	xcpu "golang.org/x/sys/cpu"
)

const gb = 1024 * 1024 * 1024

// Host describes the machine a benchmark ran on.
type Host struct {
	CPU        string   `json:"cpu"`
	Cores      int      `json:"cores"`
	GOMAXPROCS int      `json:"gomaxprocs"`
	MemoryGB   float64  `json:"memory_gb"`
	Arch       string   `json:"arch"`
	Features   []string `json:"features,omitempty"`
}

// DetectHost gathers CPU and memory details. Missing information is left
// at its zero value rather than reported as an error.
func DetectHost() Host {
	h := Host{
		CPU:        "Unknown CPU",
		Cores:      runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		Arch:       runtime.GOARCH,
		Features:   cpuFeatures(),
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		name := strings.TrimSpace(infos[0].ModelName)
		if name == "" {
			name = infos[0].VendorID
		}
		if name != "" {
			h.CPU = name
		}
	}
	if v, err := mem.VirtualMemory(); err == nil {
		h.MemoryGB = float64(v.Total) / gb
	}
	return h
}

func cpuFeatures() []string {
	var out []string
	add := func(ok bool, name string) {
		if ok {
			out = append(out, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(xcpu.X86.HasSSE41, "sse4.1")
		add(xcpu.X86.HasAVX, "avx")
		add(xcpu.X86.HasAVX2, "avx2")
		add(xcpu.X86.HasFMA, "fma")
		add(xcpu.X86.HasAVX512F, "avx512f")
		add(xcpu.X86.HasAVX512BF16, "avx512bf16")
	case "arm64":
		add(xcpu.ARM64.HasASIMD, "asimd")
		add(xcpu.ARM64.HasFPHP, "fphp")
		add(xcpu.ARM64.HasASIMDHP, "asimdhp")
		add(xcpu.ARM64.HasSVE, "sve")
	}
	return out
}
