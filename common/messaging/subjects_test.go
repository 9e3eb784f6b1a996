package messaging

import (
	"strings"
	"testing"
)

func TestSubjectConstants_FollowNamingConvention(t *testing.T) {
	subjects := []string{
		SubjectTelemetryStats,
		SubjectTelemetryProcesses,
		SubjectTelemetryDisk,
		SubjectProcessKilled,
		SubjectProcessKill,
	}

	for _, subject := range subjects {
		if !strings.HasPrefix(subject, "monitor.") {
			t.Errorf("subject %q should start with 'monitor.'", subject)
		}
		if parts := strings.Split(subject, "."); len(parts) != 3 {
			t.Errorf("subject %q does not follow {domain}.{resource}.{kind}", subject)
		}
	}
}

func TestSubjectTelemetryAll_CoversTelemetry(t *testing.T) {
	prefix := strings.TrimSuffix(SubjectTelemetryAll, ">")
	for _, subject := range []string{SubjectTelemetryStats, SubjectTelemetryProcesses, SubjectTelemetryDisk} {
		if !strings.HasPrefix(subject, prefix) {
			t.Errorf("wildcard %q does not cover %q", SubjectTelemetryAll, subject)
		}
	}
	if strings.HasPrefix(SubjectProcessKilled, prefix) {
		t.Errorf("wildcard %q should not cover process subjects", SubjectTelemetryAll)
	}
}
