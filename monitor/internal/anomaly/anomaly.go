// Package anomaly extracts anomaly records from STATS payloads.
//
// Extraction is two steps: a schema-checked decode into Candidate values,
// then Normalize, which fills in defaults for missing fields.
package anomaly

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
)

// Candidate is an anomaly entry as the producer sent it. Nil means the
// field was absent or null.
type Candidate struct {
	Type     *string `json:"type"`
	Severity *string `json:"severity"`
	Message  *string `json:"message"`
}

// ParseError reports a STATS payload that is not a well-formed document
// of the expected shape.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("anomaly: %s: %v", e.Reason, e.Err)
	}
	return "anomaly: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type statsDocument struct {
	Anomalies json.RawMessage `json:"anomalies"`
}

// Decode parses a STATS body and returns the anomaly candidates it holds.
// A document without an anomalies field, or with a null or empty list,
// yields no candidates and no error.
func Decode(raw string) ([]Candidate, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 || data[0] != '{' {
		return nil, &ParseError{Reason: "payload is not a JSON object"}
	}

	var doc statsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Reason: "malformed payload", Err: err}
	}

	list := bytes.TrimSpace(doc.Anomalies)
	if len(list) == 0 || bytes.Equal(list, []byte("null")) {
		return nil, nil
	}
	if list[0] != '[' {
		return nil, &ParseError{Reason: "anomalies is not an array"}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(list, &elems); err != nil {
		return nil, &ParseError{Reason: "malformed anomalies array", Err: err}
	}

	candidates := make([]Candidate, 0, len(elems))
	for i, elem := range elems {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 || elem[0] != '{' {
			return nil, &ParseError{Reason: fmt.Sprintf("anomalies[%d] is not an object", i)}
		}
		var c Candidate
		if err := json.Unmarshal(elem, &c); err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("anomalies[%d] has invalid fields", i), Err: err}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// Normalize converts a candidate into an event stamped with observedAt.
// Missing or empty fields take the package defaults.
func Normalize(c Candidate, observedAt time.Time) *models.AnomalyEvent {
	return &models.AnomalyEvent{
		Category:   valueOr(c.Type, models.DefaultCategory),
		Severity:   valueOr(c.Severity, models.DefaultSeverity),
		Message:    valueOr(c.Message, models.DefaultMessage),
		ObservedAt: observedAt,
	}
}

// Extract decodes raw and normalizes every candidate. All events share
// the same observedAt.
func Extract(raw string, observedAt time.Time) ([]*models.AnomalyEvent, error) {
	candidates, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	events := make([]*models.AnomalyEvent, 0, len(candidates))
	for _, c := range candidates {
		events = append(events, Normalize(c, observedAt))
	}
	return events, nil
}

func valueOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}
