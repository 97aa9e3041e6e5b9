// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package usage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ApexScan/services/scan/soql"
)

// extractOne pulls the single query out of a method snippet.
func extractOne(t *testing.T, methodText string) soql.Query {
	t.Helper()
	queries := soql.ExtractQueries(methodText)
	require.Len(t, queries, 1)
	return queries[0]
}

// trackSnippet binds and tracks the first query of a method body.
func trackSnippet(t *testing.T, methodText string, inLoop, classMember bool) Projection {
	t.Helper()
	queries := soql.ExtractQueries(methodText)
	require.NotEmpty(t, queries)
	q := queries[0]

	variable, ok := BindVariable(soql.Normalize(methodText), q.StartOffset)
	require.True(t, ok, "query should bind to a variable")

	return Track(Input{
		Query:         q,
		Variable:      variable,
		RestOfMethod:  methodText[q.EndOffset:],
		LaterQueries:  queries[1:],
		InLoop:        inLoop,
		IsClassMember: classMember,
	})
}

func TestBindVariable_Declaration(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id FROM Account];
}`
	q := extractOne(t, method)
	name, ok := BindVariable(method, q.StartOffset)
	require.True(t, ok)
	assert.Equal(t, "accs", name)
}

func TestBindVariable_SplitAcrossLines(t *testing.T) {
	method := `{
    List<Account> accs;
    accs =
        [SELECT Id FROM Account];
}`
	q := extractOne(t, method)
	name, ok := BindVariable(method, q.StartOffset)
	require.True(t, ok)
	assert.Equal(t, "accs", name)
}

func TestBindVariable_OutsideProximityWindow(t *testing.T) {
	method := `{
    List<Account> accs =
        // comment line one
        // comment line two
        [SELECT Id FROM Account];
}`
	q := extractOne(t, method)
	_, ok := BindVariable(soql.Normalize(method), q.StartOffset)
	assert.False(t, ok, "assignment three lines above the query is out of window")
}

func TestBindVariable_ForEachOverridesProximity(t *testing.T) {
	method := `{
    List<Account> stale = null;
    for (Account acc : [SELECT Id, Name FROM Account]) {
        System.debug(acc.Name);
    }
}`
	q := extractOne(t, method)
	name, ok := BindVariable(method, q.StartOffset)
	require.True(t, ok)
	assert.Equal(t, "acc", name)
}

func TestBindVariable_Unassigned(t *testing.T) {
	method := `{
    process([SELECT Id FROM Account]);
}`
	q := extractOne(t, method)
	_, ok := BindVariable(method, q.StartOffset)
	assert.False(t, ok)
}

func TestTrack_UnusedField(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account LIMIT 1];
    System.debug(accs[0].Name);
}`
	p := trackSnippet(t, method, false, false)

	assert.Equal(t, []string{"Id", "Name", "Phone"}, p.OriginalFields)
	assert.Equal(t, []string{"Phone"}, p.UnusedFields, "Id is a system field, Name is read")
	assert.False(t, p.IsReturned)
	assert.False(t, p.CompleteObjectUsage)
}

func TestTrack_AssignmentTargetIsNotUsage(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account];
    accs[0].Phone = '555';
}`
	p := trackSnippet(t, method, false, false)
	assert.ElementsMatch(t, []string{"Name", "Phone"}, p.UnusedFields,
		"writing a field is not reading it")
}

func TestTrack_ComparisonIsUsage(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account];
    if (accs[0].Phone == null) {
        System.debug('no phone');
    }
}`
	p := trackSnippet(t, method, false, false)
	assert.Equal(t, []string{"Name"}, p.UnusedFields)
}

func TestTrack_LoopAliasReads(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account];
    for (Account item : accs) {
        System.debug(item.Name);
    }
}`
	p := trackSnippet(t, method, false, false)
	assert.Equal(t, []string{"Phone"}, p.UnusedFields)
	assert.False(t, p.CompleteObjectUsage, "iterating the list is not a whole-object hand-off")
}

func TestTrack_RelationshipPath(t *testing.T) {
	method := `{
    List<Contact> cons = [SELECT Id, Account.Name, Phone FROM Contact];
    String n = cons[0].Account.Name.toLowerCase();
}`
	p := trackSnippet(t, method, false, false)
	assert.Equal(t, []string{"Phone"}, p.UnusedFields)
}

func TestTrack_ReturnedBare(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account];
    return accs;
}`
	p := trackSnippet(t, method, false, false)
	assert.True(t, p.IsReturned)
	assert.True(t, p.CompleteObjectUsage)
	assert.Empty(t, p.UnusedFields)
}

func TestTrack_ReturnedFieldAccessIsNotBareReturn(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account];
    return accs[0].Name;
}`
	p := trackSnippet(t, method, false, false)
	assert.False(t, p.IsReturned)
	assert.Equal(t, []string{"Phone"}, p.UnusedFields)
}

func TestTrack_BareArgument(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account];
    process(accs);
}`
	p := trackSnippet(t, method, false, false)
	assert.True(t, p.CompleteObjectUsage)
	assert.Empty(t, p.UnusedFields)
}

func TestTrack_InsertIsCompleteUsage(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account];
    insert accs;
}`
	p := trackSnippet(t, method, false, false)
	assert.True(t, p.CompleteObjectUsage)
	assert.Empty(t, p.UnusedFields)
}

func TestTrack_UpdateIsNotCompleteUsage(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account];
    update accs;
}`
	p := trackSnippet(t, method, false, false)
	assert.False(t, p.CompleteObjectUsage, "update only needs the Id field")
	assert.ElementsMatch(t, []string{"Name", "Phone"}, p.UnusedFields)
}

func TestTrack_SizeAndEmptinessChecksAreNotCompleteUsage(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account];
    if (accs == null || accs.isEmpty()) {
        System.debug(accs.size());
    }
}`
	p := trackSnippet(t, method, false, false)
	assert.False(t, p.CompleteObjectUsage)
	assert.ElementsMatch(t, []string{"Name", "Phone"}, p.UnusedFields)
}

func TestTrack_LaterQueryBind(t *testing.T) {
	method := `{
    Account acc = [SELECT Id, Name, Phone FROM Account LIMIT 1];
    List<Contact> cons = [SELECT Id FROM Contact WHERE Phone = :acc.Phone];
}`
	p := trackSnippet(t, method, false, false)
	assert.Equal(t, []string{"Phone"}, p.UsedInLaterQueries)
	assert.Equal(t, []string{"Name"}, p.UnusedFields)
	for _, f := range p.UnusedFields {
		assert.NotContains(t, p.UsedInLaterQueries, f,
			"unused and later-used sets must be disjoint")
	}
}

func TestTrack_ClassMemberSuppressesUnused(t *testing.T) {
	method := `{
    cached = [SELECT Id, Name, Phone FROM Account];
    System.debug(cached[0].Name);
}`
	p := trackSnippet(t, method, false, true)
	assert.True(t, p.IsClassMember)
	assert.Empty(t, p.UnusedFields)
}

func TestTrack_NestedSubqueryFlag(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, (SELECT LastName FROM Contacts) FROM Account];
    System.debug(accs[0].Name);
}`
	p := trackSnippet(t, method, false, false)
	assert.True(t, p.HasNestedSubquery)
	assert.Empty(t, p.UnusedFields, "Id and the sub-query token are excluded, Name is read")
}

func TestTrack_CommentsCannotFakeUsage(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account];
    // accs[0].Phone is mentioned here only
    System.debug(accs[0].Name);
}`
	p := trackSnippet(t, method, false, false)
	assert.Equal(t, []string{"Phone"}, p.UnusedFields)
}

func TestTrack_Idempotent(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone FROM Account];
    System.debug(accs[0].Name);
}`
	first := trackSnippet(t, method, true, false)
	second := trackSnippet(t, method, true, false)
	assert.Equal(t, first, second)
	assert.True(t, first.IsInLoop)
}

func TestTrack_UnusedSubsetOfOriginal(t *testing.T) {
	method := `{
    List<Account> accs = [SELECT Id, Name, Phone, Industry FROM Account];
    System.debug(accs[0].Industry);
}`
	p := trackSnippet(t, method, false, false)
	for _, f := range p.UnusedFields {
		found := false
		for _, o := range p.OriginalFields {
			if strings.EqualFold(o, f) {
				found = true
			}
		}
		assert.True(t, found, "unused field %q must come from the projection", f)
	}
}
