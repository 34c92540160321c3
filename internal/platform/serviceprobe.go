package platform

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ServiceProbe checks whether a platform's health broker process is
// alive on this machine.
type ServiceProbe interface {
	// IsServiceRunning reports whether any running process matches the
	// pattern (case-insensitive).
	IsServiceRunning(pattern string) bool
}

// GopsutilServiceProbe implements ServiceProbe using gopsutil.
type GopsutilServiceProbe struct{}

// NewServiceProbe creates a process-table backed service probe.
func NewServiceProbe() ServiceProbe {
	return &GopsutilServiceProbe{}
}

// IsServiceRunning scans the process table for a name match.
func (p *GopsutilServiceProbe) IsServiceRunning(pattern string) bool {
	procs, err := process.Processes()
	if err != nil {
		return false
	}

	patternLower := strings.ToLower(pattern)
	for _, proc := range procs {
		name, err := proc.Name()
		if err != nil {
			continue // Process may have exited
		}
		if strings.Contains(strings.ToLower(name), patternLower) {
			return true
		}
	}
	return false
}
