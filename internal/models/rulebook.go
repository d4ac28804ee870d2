package models

import (
	"fmt"
)

// LOSBand is one Level-of-Service band: densities in [MinDensity,
// MaxDensity) classify as Label. Bands are ordered from best to worst;
// densities above all bands classify as the last (worst) band.
type LOSBand struct {
	Label      string  `json:"label" mapstructure:"label"`
	MinDensity float64 `json:"min_density" mapstructure:"min_density"`
	MaxDensity float64 `json:"max_density" mapstructure:"max_density"`
}

// FlagRule maps bin metrics to a flag severity. A rule triggers when any
// of its enabled criteria is met: LOS at or worse than MinLOS, density
// at or above MinDensity, or rate at or above MinRate. Zero values
// disable a criterion.
type FlagRule struct {
	Severity   Severity `json:"severity" mapstructure:"severity"`
	MinLOS     string   `json:"min_los,omitempty" mapstructure:"min_los"`
	MinDensity float64  `json:"min_density,omitempty" mapstructure:"min_density"`
	MinRate    float64  `json:"min_rate,omitempty" mapstructure:"min_rate"`
}

// Rulebook carries the externally supplied LOS bands and flag severity
// thresholds for one run. It is versioned and content-hashed so
// downstream consumers can detect staleness. Thresholds are never
// hardcoded anywhere in the computation packages.
type Rulebook struct {
	Version string     `json:"version" mapstructure:"version"`
	Hash    string     `json:"hash" mapstructure:"-"` // SHA-256 of the source file
	Bands   []LOSBand  `json:"bands" mapstructure:"bands"`
	Flags   []FlagRule `json:"flags" mapstructure:"flags"`
}

// Validate checks band ordering, contiguity, and flag rule sanity.
func (rb *Rulebook) Validate() error {
	if rb.Version == "" {
		return &ConfigurationError{Field: "rulebook", Reason: "version must not be empty"}
	}
	if len(rb.Bands) == 0 {
		return &ConfigurationError{Field: "rulebook", Reason: "at least one LOS band is required"}
	}
	seen := make(map[string]bool, len(rb.Bands))
	for i, b := range rb.Bands {
		if b.Label == "" {
			return &ConfigurationError{Field: "rulebook", Reason: fmt.Sprintf("band %d has empty label", i)}
		}
		if seen[b.Label] {
			return &ConfigurationError{Field: "rulebook", Reason: fmt.Sprintf("duplicate band label %q", b.Label)}
		}
		seen[b.Label] = true
		if b.MaxDensity <= b.MinDensity {
			return &ConfigurationError{Field: "rulebook",
				Reason: fmt.Sprintf("band %s: max density %.3f must exceed min %.3f", b.Label, b.MaxDensity, b.MinDensity)}
		}
		if i == 0 && b.MinDensity != 0 {
			return &ConfigurationError{Field: "rulebook",
				Reason: fmt.Sprintf("first band %s must start at density 0", b.Label)}
		}
		if i > 0 && b.MinDensity != rb.Bands[i-1].MaxDensity {
			return &ConfigurationError{Field: "rulebook",
				Reason: fmt.Sprintf("band %s min %.3f must equal previous band max %.3f",
					b.Label, b.MinDensity, rb.Bands[i-1].MaxDensity)}
		}
	}
	if len(rb.Flags) == 0 {
		return &ConfigurationError{Field: "rulebook", Reason: "at least one flag rule is required"}
	}
	prev := SeverityNone
	for i, f := range rb.Flags {
		if f.Severity <= SeverityNone || f.Severity > SeverityCritical {
			return &ConfigurationError{Field: "rulebook",
				Reason: fmt.Sprintf("flag rule %d: severity must be WATCH, ALERT or CRITICAL", i)}
		}
		if f.Severity <= prev {
			return &ConfigurationError{Field: "rulebook",
				Reason: "flag rules must be ordered by ascending severity"}
		}
		prev = f.Severity
		if f.MinLOS == "" && f.MinDensity <= 0 && f.MinRate <= 0 {
			return &ConfigurationError{Field: "rulebook",
				Reason: fmt.Sprintf("flag rule %d (%s) has no enabled criterion", i, f.Severity)}
		}
		if f.MinLOS != "" && !seen[f.MinLOS] {
			return &ConfigurationError{Field: "rulebook",
				Reason: fmt.Sprintf("flag rule %d references unknown LOS label %q", i, f.MinLOS)}
		}
	}
	return nil
}

// LOSIndex returns the position of a label in the band order, or -1 for
// unknown labels. Higher index means worse.
func (rb *Rulebook) LOSIndex(label string) int {
	for i, b := range rb.Bands {
		if b.Label == label {
			return i
		}
	}
	return -1
}

// LOSWorseOrEqual reports whether grade a is at least as bad as grade b.
func (rb *Rulebook) LOSWorseOrEqual(a, b string) bool {
	ia, ib := rb.LOSIndex(a), rb.LOSIndex(b)
	return ia >= 0 && ib >= 0 && ia >= ib
}

// WorstBand returns the last (worst) band label.
func (rb *Rulebook) WorstBand() string {
	return rb.Bands[len(rb.Bands)-1].Label
}
