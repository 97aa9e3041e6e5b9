// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package severity defines the severity taxonomy shared by the scan engine
// and the pure calculators that derive a level from runtime telemetry.
//
// # Description
//
// Two taxonomies coexist: static detection uses {medium, high, critical}
// depending on structural context, runtime enrichment uses {minor, major,
// critical}. A single antipattern kind never mixes the two; the shared type
// exists so results carry one severity field regardless of origin.
//
// # Thread Safety
//
// Everything here is pure and safe for concurrent use.
package severity

// Severity is one level of either taxonomy.
type Severity string

const (
	// Minor is the runtime-taxonomy floor: telemetry matched but stayed
	// under every threshold.
	Minor Severity = "minor"

	// Medium is the static-taxonomy floor for detections outside loops.
	Medium Severity = "medium"

	// Major is the runtime mid level.
	Major Severity = "major"

	// High is the static level for loop-context detections.
	High Severity = "high"

	// Critical is the top level of both taxonomies.
	Critical Severity = "critical"
)

// Source records where a detection's severity came from.
type Source string

const (
	// SourceStatic marks a severity derived from structural heuristics.
	SourceStatic Source = "static"

	// SourceRuntime marks a severity overridden by correlated telemetry.
	SourceRuntime Source = "runtime"
)

// Thresholds parameterize the runtime calculators. Callers pass overrides
// explicitly; there is no global state.
type Thresholds struct {
	// CriticalOccurrences is the representative-occurrence count above
	// which a query is critical.
	CriticalOccurrences int64

	// MajorOccurrences is the count above which a query is major.
	MajorOccurrences int64

	// CriticalAvgCPUTime is the per-entrypoint average CPU time above
	// which an entrypoint makes its method critical. Units follow the
	// telemetry source.
	CriticalAvgCPUTime float64
}

// DefaultThresholds returns the engine defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CriticalOccurrences: 10_000_000,
		MajorOccurrences:    1_000,
		CriticalAvgCPUTime:  2_000,
	}
}

// FromOccurrenceCount maps a representative occurrence count to a runtime
// severity: above CriticalOccurrences critical, above MajorOccurrences
// major, otherwise minor.
func FromOccurrenceCount(count int64, t Thresholds) Severity {
	switch {
	case count > t.CriticalOccurrences:
		return Critical
	case count > t.MajorOccurrences:
		return Major
	default:
		return Minor
	}
}

// FromCPUTime maps per-entrypoint average CPU times to a runtime severity:
// minor when no entrypoint reported, critical when any average exceeds
// CriticalAvgCPUTime, major otherwise.
func FromCPUTime(avgCPUTimes []float64, t Thresholds) Severity {
	if len(avgCPUTimes) == 0 {
		return Minor
	}
	for _, avg := range avgCPUTimes {
		if avg > t.CriticalAvgCPUTime {
			return Critical
		}
	}
	return Major
}

// ForLoopContext picks between the loop-context and default level of one
// static taxonomy.
func ForLoopContext(inLoop bool, loop, otherwise Severity) Severity {
	if inLoop {
		return loop
	}
	return otherwise
}
