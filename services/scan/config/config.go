// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config carries the scan engine's embedded defaults: severity
// thresholds and per-antipattern fix instruction texts.
//
// The defaults ship inside the binary (no file I/O at runtime); callers
// override thresholds per scan by passing their own values to the
// enrichers.
package config

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ApexScan/services/scan/severity"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Defaults is the parsed embedded configuration.
//
// # Thread Safety
//
// Safe for concurrent use after load (immutable).
type Defaults struct {
	SeverityThresholds struct {
		CriticalOccurrences int64   `yaml:"critical_occurrences"`
		MajorOccurrences    int64   `yaml:"major_occurrences"`
		CriticalAvgCPUTime  float64 `yaml:"critical_avg_cpu_time"`
	} `yaml:"severity_thresholds"`

	FixInstructions map[string]string `yaml:"fix_instructions"`
}

var (
	cachedDefaults *Defaults
	defaultsOnce   sync.Once
	defaultsErr    error
)

// Load parses and caches the embedded defaults. Subsequent calls return
// the cached result. A parse failure is a build defect, not expected
// input, so callers may treat the error as fatal.
func Load() (*Defaults, error) {
	defaultsOnce.Do(func() {
		var d Defaults
		if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
			defaultsErr = fmt.Errorf("parsing embedded defaults.yaml: %w", err)
			return
		}
		cachedDefaults = &d
	})
	return cachedDefaults, defaultsErr
}

// Thresholds returns the embedded severity thresholds, falling back to
// the calculator's hard defaults when the embedded config cannot load.
func Thresholds() severity.Thresholds {
	d, err := Load()
	if err != nil {
		return severity.DefaultThresholds()
	}
	return severity.Thresholds{
		CriticalOccurrences: d.SeverityThresholds.CriticalOccurrences,
		MajorOccurrences:    d.SeverityThresholds.MajorOccurrences,
		CriticalAvgCPUTime:  d.SeverityThresholds.CriticalAvgCPUTime,
	}
}

// InstructionFor returns the fix instruction for an antipattern kind, or
// a generic fallback for kinds the embedded config does not know.
func InstructionFor(kind string) string {
	d, err := Load()
	if err == nil {
		if text, ok := d.FixInstructions[kind]; ok {
			return strings.TrimSpace(text)
		}
	}
	return "Review this detection and rework the flagged code to avoid the antipattern."
}
