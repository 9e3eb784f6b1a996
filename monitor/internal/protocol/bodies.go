package protocol

import (
	"encoding/json"
	"fmt"
)

// StatsBody is the typed view of a STATS payload.
type StatsBody struct {
	CPU        float64           `json:"cpu"`
	Memory     float64           `json:"memory"`
	NetworkIn  float64           `json:"network_in"`
	NetworkOut float64           `json:"network_out"`
	Anomalies  []json.RawMessage `json:"anomalies,omitempty"`
}

// ProcessInfo is one row of a PROCS payload.
type ProcessInfo struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	Username      string  `json:"username,omitempty"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// DiskInfo is one row of a DISK payload. Sizes are in bytes.
type DiskInfo struct {
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	FSType     string  `json:"fstype,omitempty"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used,omitempty"`
	Free       uint64  `json:"free"`
	Percent    float64 `json:"percent"`
}

// ParseStats decodes a STATS body.
func ParseStats(body string) (*StatsBody, error) {
	var s StatsBody
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return nil, fmt.Errorf("parse stats body: %w", err)
	}
	return &s, nil
}

// ParseProcesses decodes a PROCS body.
func ParseProcesses(body string) ([]ProcessInfo, error) {
	var procs []ProcessInfo
	if err := json.Unmarshal([]byte(body), &procs); err != nil {
		return nil, fmt.Errorf("parse processes body: %w", err)
	}
	return procs, nil
}

// ParseDisks decodes a DISK body.
func ParseDisks(body string) ([]DiskInfo, error) {
	var disks []DiskInfo
	if err := json.Unmarshal([]byte(body), &disks); err != nil {
		return nil, fmt.Errorf("parse disk body: %w", err)
	}
	return disks, nil
}
