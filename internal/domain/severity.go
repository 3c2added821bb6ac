// Package domain contains core business types and interfaces.
//
// This file defines the single ordered Severity type shared by rule results,
// violations and the export gate.
package domain

import (
	"fmt"
	"strings"
)

// Severity ranks how serious a violation is. The order is total:
// info < warning < major < critical.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeverityWarning
	SeverityMajor
	SeverityCritical
)

// String returns the canonical lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityMajor:
		return "major"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// IsValid returns true if the severity is a recognized value.
func (s Severity) IsValid() bool {
	return s >= SeverityInfo && s <= SeverityCritical
}

// Blocks reports whether an unresolved violation of this severity blocks export.
func (s Severity) Blocks() bool {
	return s >= SeverityMajor
}

// ParseSeverity parses a severity name. "minor" is accepted as an alias of
// "warning" for documents written against the older vocabulary.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "info":
		return SeverityInfo, nil
	case "warning", "minor":
		return SeverityWarning, nil
	case "major":
		return SeverityMajor, nil
	case "critical":
		return SeverityCritical, nil
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ApprovalLevel returns the engineering role required to override a violation
// of this severity.
func (s Severity) ApprovalLevel() string {
	switch s {
	case SeverityCritical:
		return "chief_engineer"
	case SeverityMajor:
		return "senior_engineer"
	default:
		return "engineer"
	}
}
