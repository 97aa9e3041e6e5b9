// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	d, err := Load()
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, int64(10_000_000), d.SeverityThresholds.CriticalOccurrences)
	assert.Equal(t, int64(1_000), d.SeverityThresholds.MajorOccurrences)
	assert.Equal(t, float64(2_000), d.SeverityThresholds.CriticalAvgCPUTime)
	assert.Len(t, d.FixInstructions, 3)
}

func TestLoad_Cached(t *testing.T) {
	first, err := Load()
	require.NoError(t, err)
	second, err := Load()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestThresholds(t *testing.T) {
	th := Thresholds()
	assert.Equal(t, int64(10_000_000), th.CriticalOccurrences)
	assert.Equal(t, int64(1_000), th.MajorOccurrences)
	assert.Equal(t, float64(2_000), th.CriticalAvgCPUTime)
}

func TestInstructionFor(t *testing.T) {
	assert.Contains(t, InstructionFor("schema_global_describe"), "getGlobalDescribe")
	assert.Contains(t, InstructionFor("unfiltered_soql"), "WHERE")
	assert.Contains(t, InstructionFor("unused_soql_fields"), "SELECT")
}

func TestInstructionFor_UnknownKindFallsBack(t *testing.T) {
	text := InstructionFor("no_such_kind")
	assert.NotEmpty(t, text)
}
