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

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ApexScan/services/scan/severity"
)

func TestDescribeCall_InsideLoop(t *testing.T) {
	src := `public class Sample {
    public void run() {
        for (Integer i = 0; i < 5; i++) {
            Schema.getGlobalDescribe();
        }
    }
}`
	dets := NewDescribeCallDetector().Detect(context.Background(), "Sample", src)
	require.Len(t, dets, 1)

	d := dets[0]
	assert.Equal(t, TypeGlobalDescribe, d.Type)
	assert.Equal(t, "Sample", d.ClassName)
	assert.Equal(t, 4, d.LineNumber)
	assert.Equal(t, severity.High, d.Severity)
	assert.Equal(t, severity.SourceStatic, d.SeveritySource)
	assert.Equal(t, "Schema.getGlobalDescribe();", d.Code)
}

func TestDescribeCall_OutsideLoop(t *testing.T) {
	src := `public class Sample {
    public void run() {
        Map<String, Schema.SObjectType> m = Schema.getGlobalDescribe();
    }
}`
	dets := NewDescribeCallDetector().Detect(context.Background(), "Sample", src)
	require.Len(t, dets, 1)
	assert.Equal(t, severity.Medium, dets[0].Severity)
	assert.Equal(t, "run", dets[0].MethodName)
}

func TestDescribeCall_TokenTolerance(t *testing.T) {
	src := `public class Sample {
    public void run() {
        while (true) {
            SCHEMA . getGlobalDescribe ();
        }
    }
}`
	dets := NewDescribeCallDetector().Detect(context.Background(), "Sample", src)
	require.Len(t, dets, 1)
	assert.Equal(t, severity.High, dets[0].Severity)
}

func TestDescribeCall_BracelessLoopBody(t *testing.T) {
	src := `public class Sample {
    public void run() {
        for (Integer i = 0; i < 5; i++)
            Schema.getGlobalDescribe();
    }
}`
	dets := NewDescribeCallDetector().Detect(context.Background(), "Sample", src)
	require.Len(t, dets, 1)
	assert.Equal(t, severity.High, dets[0].Severity)
}

func TestDescribeCall_IgnoresCommentsAndStrings(t *testing.T) {
	src := `public class Sample {
    public void run() {
        // Schema.getGlobalDescribe();
        /* Schema.getGlobalDescribe(); */
        String s = 'Schema.getGlobalDescribe()';
    }
}`
	dets := NewDescribeCallDetector().Detect(context.Background(), "Sample", src)
	assert.Empty(t, dets)
}

func TestDescribeCall_CleanSource(t *testing.T) {
	src := `public class Sample {
    public void run() {
        System.debug('hello');
    }
}`
	assert.Empty(t, NewDescribeCallDetector().Detect(context.Background(), "Sample", src))
}

func TestUnfilteredQuery_Detects(t *testing.T) {
	src := `public class Sample {
    public void load() {
        List<Account> accs = [SELECT Id, Name FROM Account];
    }
}`
	dets := NewUnfilteredQueryDetector().Detect(context.Background(), "Sample", src)
	require.Len(t, dets, 1)

	d := dets[0]
	assert.Equal(t, TypeUnfilteredQuery, d.Type)
	assert.Equal(t, 3, d.LineNumber)
	assert.Equal(t, severity.High, d.Severity)
	assert.Equal(t, "[SELECT Id, Name FROM Account]", d.Code)
}

func TestUnfilteredQuery_InsideLoopIsCritical(t *testing.T) {
	src := `public class Sample {
    public void load(List<Id> ids) {
        for (Integer i = 0; i < ids.size(); i++) {
            List<Account> accs = [SELECT Id FROM Account];
        }
    }
}`
	dets := NewUnfilteredQueryDetector().Detect(context.Background(), "Sample", src)
	require.Len(t, dets, 1)
	assert.Equal(t, severity.Critical, dets[0].Severity)
}

func TestUnfilteredQuery_FilteredOrLimitedPass(t *testing.T) {
	src := `public class Sample {
    public void load() {
        List<Account> a = [SELECT Id FROM Account WHERE Name != null];
        List<Account> b = [SELECT Id FROM Account LIMIT 200];
    }
}`
	assert.Empty(t, NewUnfilteredQueryDetector().Detect(context.Background(), "Sample", src))
}

func TestUnfilteredQuery_SubqueryClausesDoNotCount(t *testing.T) {
	src := `public class Sample {
    public void load() {
        List<Account> accs = [SELECT Id, (SELECT LastName FROM Contacts LIMIT 1) FROM Account];
    }
}`
	dets := NewUnfilteredQueryDetector().Detect(context.Background(), "Sample", src)
	require.Len(t, dets, 1, "a LIMIT on the sub-query must not satisfy the outer query")
}

func TestUnusedProjection_Detects(t *testing.T) {
	src := `public class Sample {
    public void load() {
        List<Account> accs = [SELECT Id, Name, Phone FROM Account LIMIT 1];
        System.debug(accs[0].Name);
    }
}`
	dets := NewUnusedProjectionDetector().Detect(context.Background(), "Sample", src)
	require.Len(t, dets, 1)

	d := dets[0]
	assert.Equal(t, TypeUnusedProjection, d.Type)
	assert.Equal(t, severity.Medium, d.Severity)
	require.NotNil(t, d.Projection)
	assert.Equal(t, []string{"Phone"}, d.Projection.UnusedFields)
	assert.Equal(t, "accs", d.Projection.AssignedVariable)
	require.NotNil(t, d.Query)
	assert.Equal(t, []string{"Id", "Name", "Phone"}, d.Query.FieldNames())
}

func TestUnusedProjection_ReturnedQuerySuppressed(t *testing.T) {
	src := `public class Sample {
    public List<Account> load() {
        List<Account> accs = [SELECT Id, Name, Phone FROM Account LIMIT 5];
        return accs;
    }
}`
	assert.Empty(t, NewUnusedProjectionDetector().Detect(context.Background(), "Sample", src))
}

func TestUnusedProjection_UnassignedQuerySuppressed(t *testing.T) {
	src := `public class Sample {
    public void load() {
        process([SELECT Id, Name FROM Account LIMIT 5]);
    }
}`
	assert.Empty(t, NewUnusedProjectionDetector().Detect(context.Background(), "Sample", src))
}

func TestUnusedProjection_AllFieldsUsed(t *testing.T) {
	src := `public class Sample {
    public void load() {
        List<Account> accs = [SELECT Id, Name FROM Account LIMIT 5];
        System.debug(accs[0].Name);
    }
}`
	assert.Empty(t, NewUnusedProjectionDetector().Detect(context.Background(), "Sample", src))
}

func TestUnusedProjection_NestedSubqueryStillReported(t *testing.T) {
	src := `public class Sample {
    public void load() {
        List<Account> accs = [SELECT Id, Name, Phone, (SELECT LastName FROM Contacts) FROM Account LIMIT 5];
        System.debug(accs[0].Name);
    }
}`
	dets := NewUnusedProjectionDetector().Detect(context.Background(), "Sample", src)
	require.Len(t, dets, 1)
	require.NotNil(t, dets[0].Projection)
	assert.True(t, dets[0].Projection.HasNestedSubquery)
	assert.Equal(t, []string{"Phone"}, dets[0].Projection.UnusedFields)
}

func TestUnusedProjection_MethodScopesAreIndependent(t *testing.T) {
	src := `public class Sample {
    public void first() {
        List<Account> accs = [SELECT Id, Name, Phone FROM Account LIMIT 1];
        System.debug(accs[0].Name);
    }
    public void second() {
        List<Account> accs = [SELECT Id, Phone FROM Account LIMIT 1];
        System.debug(accs[0].Phone);
    }
}`
	dets := NewUnusedProjectionDetector().Detect(context.Background(), "Sample", src)
	require.Len(t, dets, 1, "only the first method leaves Phone unread")
	assert.Equal(t, []string{"Phone"}, dets[0].Projection.UnusedFields)
	assert.Equal(t, "first", dets[0].MethodName)
}

func TestDetectors_Idempotent(t *testing.T) {
	src := `public class Sample {
    public void run() {
        for (Account a : [SELECT Id, Name FROM Account]) {
            Schema.getGlobalDescribe();
        }
    }
}`
	detectors := []Detector{
		NewDescribeCallDetector(),
		NewUnfilteredQueryDetector(),
		NewUnusedProjectionDetector(),
	}
	for _, d := range detectors {
		first := d.Detect(context.Background(), "Sample", src)
		second := d.Detect(context.Background(), "Sample", src)
		assert.Equal(t, first, second, "detector %s must be stateless", d.Type())
	}
}

func TestInsideLoopLexical(t *testing.T) {
	norm := `class A { void m() { for (Integer i = 0; i < 3; i++) { x(); } y(); } }`
	xPos := 55 // inside the for body
	yPos := 62 // after the for body
	assert.Equal(t, byte('x'), norm[xPos])
	assert.Equal(t, byte('y'), norm[yPos])
	assert.True(t, insideLoopLexical(norm, xPos))
	assert.False(t, insideLoopLexical(norm, yPos))
}

func TestInsideLoopLexical_DoWhile(t *testing.T) {
	norm := `void m() { do { x(); } while (cond); y(); }`
	xPos := 16
	yPos := 37
	assert.Equal(t, byte('x'), norm[xPos])
	assert.Equal(t, byte('y'), norm[yPos])
	assert.True(t, insideLoopLexical(norm, xPos))
	assert.False(t, insideLoopLexical(norm, yPos))
}
