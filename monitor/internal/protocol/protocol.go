// Package protocol decodes the producer's newline-delimited, tag-prefixed
// output into typed telemetry messages.
//
// Each line starts with a literal tag ("STATS:", "PROCS:" or "DISK:")
// followed by a JSON body. The body is carried verbatim; the decoder never
// parses or rewrites it.
package protocol

import (
	"errors"
	"strings"
)

// Kind identifies which producer stream a message belongs to.
type Kind int

const (
	KindStats Kind = iota + 1
	KindProcesses
	KindDiskInfo
)

// ErrUnknownTag is returned by Decode for lines that carry no known tag.
// Callers drop such lines; it is not a failure of the pipeline.
var ErrUnknownTag = errors.New("protocol: unknown line tag")

// tags is checked in order. Tags are disjoint, so order only matters for speed.
var tags = []struct {
	kind   Kind
	prefix string
}{
	{KindStats, "STATS:"},
	{KindProcesses, "PROCS:"},
	{KindDiskInfo, "DISK:"},
}

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindStats:
		return "stats"
	case KindProcesses:
		return "processes"
	case KindDiskInfo:
		return "disk"
	default:
		return "unknown"
	}
}

// Tag returns the wire prefix for the kind, or "" for an invalid kind.
func (k Kind) Tag() string {
	for _, t := range tags {
		if t.kind == k {
			return t.prefix
		}
	}
	return ""
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k.Tag() != ""
}

// Message is one decoded line of producer output.
type Message struct {
	Kind Kind
	Body string
}

// Decode matches line against the tag table. A single trailing carriage
// return is dropped so CRLF producers decode the same as LF ones.
func Decode(line string) (Message, error) {
	line = strings.TrimSuffix(line, "\r")
	for _, t := range tags {
		if body, ok := strings.CutPrefix(line, t.prefix); ok {
			return Message{Kind: t.kind, Body: body}, nil
		}
	}
	return Message{}, ErrUnknownTag
}

// Encode renders m as a protocol line without the trailing newline.
// It returns "" for a message with an invalid kind.
func Encode(m Message) string {
	tag := m.Kind.Tag()
	if tag == "" {
		return ""
	}
	return tag + m.Body
}
