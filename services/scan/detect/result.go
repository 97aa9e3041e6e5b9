// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

// Result groups every instance of one antipattern kind found in a scan,
// together with the fix guidance for that kind. This is the engine's
// per-kind output record.
type Result struct {
	// Type is the antipattern kind all Detections share.
	Type AntipatternType `json:"antipatternType"`

	// FixInstruction is the kind-level remediation guidance. Present
	// even when Detections is empty.
	FixInstruction string `json:"fixInstruction"`

	// Detections are the located instances, possibly enriched with
	// runtime severity and per-instance rewrites.
	Detections []Detection `json:"detectedInstances"`
}
