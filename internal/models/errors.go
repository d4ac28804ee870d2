package models

import "fmt"

// ConfigurationError reports malformed or incomplete analysis input:
// a missing file reference, an invalid distance range, an event with no
// flow pair, and so on. It is always raised before any computation for
// the affected run begins.
type ConfigurationError struct {
	Field   string // offending field or file, e.g. "flow_pairs"
	Event   string // event name, if the error is event-scoped
	Segment string // segment id, if the error is segment-scoped
	Reason  string
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" [%s]", e.Field)
	}
	if e.Event != "" {
		msg += fmt.Sprintf(" event=%s", e.Event)
	}
	if e.Segment != "" {
		msg += fmt.Sprintf(" segment=%s", e.Segment)
	}
	return msg + ": " + e.Reason
}

// DataRangeError reports a distance or time query outside valid bounds,
// such as projecting a runner past the end of their pace table or a
// segment with zero width. It aborts the run rather than producing
// NaN or Infinity.
type DataRangeError struct {
	Event    string
	Segment  string
	Runner   int // index into the event's roster, -1 when not runner-scoped
	Distance float64
	Reason   string
}

func (e *DataRangeError) Error() string {
	msg := "data range error"
	if e.Event != "" {
		msg += fmt.Sprintf(" event=%s", e.Event)
	}
	if e.Segment != "" {
		msg += fmt.Sprintf(" segment=%s", e.Segment)
	}
	if e.Runner >= 0 {
		msg += fmt.Sprintf(" runner=%d", e.Runner)
	}
	if e.Distance != 0 {
		msg += fmt.Sprintf(" distance=%.3fkm", e.Distance)
	}
	return msg + ": " + e.Reason
}

// ConsistencyError reports an internal invariant violation, e.g. the
// flagged-bin total not matching the segment rollups. It should be
// unreachable in correct code and is treated as fatal.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return "consistency error: " + e.Reason
}
