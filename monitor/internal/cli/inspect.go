package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cybermonitor/monitor-stack/monitor/internal/anomaly"
	"github.com/cybermonitor/monitor-stack/monitor/internal/protocol"
)

const inspectMaxLine = 4 * 1024 * 1024

// inspectRecord summarizes one tagged line of producer output.
type inspectRecord struct {
	Line      int    `json:"line" yaml:"line"`
	Kind      string `json:"kind" yaml:"kind"`
	Summary   string `json:"summary,omitempty" yaml:"summary,omitempty"`
	Anomalies int    `json:"anomalies" yaml:"anomalies"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newInspectCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Decode captured producer output",
		Long: `inspect reads producer output from a file, or from stdin when no file
or "-" is given, and summarizes every STATS, PROCS and DISK line.
Untagged lines are skipped the same way the bridge skips them.`,
		Example: `  python3 -u stats_collector.py | head -n 20 | monitor inspect
  monitor inspect capture.log -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			records, err := inspectLines(in)
			if err != nil {
				return err
			}
			return writeInspect(cmd.OutOrStdout(), format, records)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", FormatTable, "output format: table, json, yaml")
	return cmd
}

func inspectLines(r io.Reader) ([]inspectRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), inspectMaxLine)

	records := []inspectRecord{}
	n := 0
	for scanner.Scan() {
		n++
		msg, err := protocol.Decode(scanner.Text())
		if err != nil {
			continue
		}
		records = append(records, inspectMessage(n, msg))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read producer output: %w", err)
	}
	return records, nil
}

func inspectMessage(line int, msg protocol.Message) inspectRecord {
	rec := inspectRecord{Line: line, Kind: msg.Kind.String()}

	switch msg.Kind {
	case protocol.KindStats:
		stats, err := protocol.ParseStats(msg.Body)
		if err != nil {
			rec.Error = err.Error()
			return rec
		}
		rec.Summary = fmt.Sprintf("cpu %.1f%%, memory %.1f%%, net in %.1f, net out %.1f",
			stats.CPU, stats.Memory, stats.NetworkIn, stats.NetworkOut)

		candidates, err := anomaly.Decode(msg.Body)
		if err != nil {
			rec.Error = err.Error()
			return rec
		}
		rec.Anomalies = len(candidates)

	case protocol.KindProcesses:
		procs, err := protocol.ParseProcesses(msg.Body)
		if err != nil {
			rec.Error = err.Error()
			return rec
		}
		rec.Summary = summarizeProcesses(procs)

	case protocol.KindDiskInfo:
		disks, err := protocol.ParseDisks(msg.Body)
		if err != nil {
			rec.Error = err.Error()
			return rec
		}
		rec.Summary = summarizeDisks(disks)
	}
	return rec
}

func summarizeProcesses(procs []protocol.ProcessInfo) string {
	if len(procs) == 0 {
		return "0 processes"
	}
	top := procs[0]
	for _, p := range procs[1:] {
		if p.CPUPercent > top.CPUPercent {
			top = p
		}
	}
	return fmt.Sprintf("%d processes, busiest %s (pid %d) at %.1f%% cpu",
		len(procs), top.Name, top.PID, top.CPUPercent)
}

func summarizeDisks(disks []protocol.DiskInfo) string {
	if len(disks) == 0 {
		return "0 disks"
	}
	sorted := append([]protocol.DiskInfo(nil), disks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Percent > sorted[j].Percent })
	fullest := sorted[0]
	return fmt.Sprintf("%d disks, fullest %s at %.1f%%", len(disks), fullest.Mountpoint, fullest.Percent)
}

func writeInspect(w io.Writer, format string, records []inspectRecord) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable, "":
		t := newTable("LINE", "KIND", "ANOMALIES", "SUMMARY")
		for _, r := range records {
			summary := r.Summary
			if r.Error != "" {
				summary = "error: " + r.Error
			}
			t.addRow(fmt.Sprint(r.Line), r.Kind, fmt.Sprint(r.Anomalies), summary)
		}
		t.render(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}
