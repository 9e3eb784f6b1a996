package service

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
)

// HostInfoFunc returns host details in gopsutil form.
type HostInfoFunc func(ctx context.Context) (*host.InfoStat, error)

// HostService reports static information about the monitored host.
type HostService struct {
	info HostInfoFunc
}

// NewHostService creates a HostService. A nil info func uses
// host.InfoWithContext.
func NewHostService(info HostInfoFunc) *HostService {
	if info == nil {
		info = host.InfoWithContext
	}
	return &HostService{info: info}
}

// Info returns the host summary.
func (s *HostService) Info(ctx context.Context) (*models.HostInfo, error) {
	st, err := s.info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read host info: %w", err)
	}
	return &models.HostInfo{
		Hostname:        st.Hostname,
		OS:              st.OS,
		Platform:        st.Platform,
		PlatformVersion: st.PlatformVersion,
		KernelVersion:   st.KernelVersion,
		UptimeSeconds:   st.Uptime,
		Processes:       st.Procs,
	}, nil
}
