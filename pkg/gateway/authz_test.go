// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthorizeNodeMethodRequiresNodeRole(t *testing.T) {
	require.Nil(t, Authorize("node.event", RoleNode, nil))

	err := Authorize("node.event", RoleOperator, []string{ScopeAdmin})
	require.NotNil(t, err)
	require.Equal(t, ErrCodeInvalidRequest, err.Code)
}

func TestAuthorizeNodeRoleCannotCallOperatorMethods(t *testing.T) {
	err := Authorize("health", RoleNode, nil)
	require.NotNil(t, err)
}

func TestAuthorizeUnknownRoleDenied(t *testing.T) {
	err := Authorize("health", "bogus-role", []string{ScopeAdmin})
	require.NotNil(t, err)
}

func TestAuthorizeAdminScopeGrantsEverything(t *testing.T) {
	for method := range ReadMethods {
		require.Nil(t, Authorize(method, RoleOperator, []string{ScopeAdmin}))
	}
	for method := range WriteMethods {
		require.Nil(t, Authorize(method, RoleOperator, []string{ScopeAdmin}))
	}
	for method := range ApprovalMethods {
		require.Nil(t, Authorize(method, RoleOperator, []string{ScopeAdmin}))
	}
	for method := range PairingMethods {
		require.Nil(t, Authorize(method, RoleOperator, []string{ScopeAdmin}))
	}
}

func TestAuthorizeReadMethods(t *testing.T) {
	require.Nil(t, Authorize("health", RoleOperator, []string{ScopeOperatorRead}))
	require.Nil(t, Authorize("health", RoleOperator, []string{ScopeOperatorWrite}))

	err := Authorize("health", RoleOperator, nil)
	require.NotNil(t, err)
	require.Contains(t, err.Message, ScopeOperatorRead)
}

func TestAuthorizeWriteMethods(t *testing.T) {
	require.Nil(t, Authorize("send", RoleOperator, []string{ScopeOperatorWrite}))

	err := Authorize("send", RoleOperator, []string{ScopeOperatorRead})
	require.NotNil(t, err)
	require.Contains(t, err.Message, ScopeOperatorWrite)
}

func TestAuthorizeApprovalMethods(t *testing.T) {
	require.Nil(t, Authorize("exec.approval.resolve", RoleOperator, []string{ScopeOperatorApprovals}))

	err := Authorize("exec.approval.resolve", RoleOperator, []string{ScopeOperatorWrite})
	require.NotNil(t, err)
	require.Contains(t, err.Message, ScopeOperatorApprovals)
}

func TestAuthorizePairingMethods(t *testing.T) {
	require.Nil(t, Authorize("node.pair.approve", RoleOperator, []string{ScopeOperatorPairing}))

	err := Authorize("node.pair.approve", RoleOperator, []string{ScopeOperatorWrite})
	require.NotNil(t, err)
	require.Contains(t, err.Message, ScopeOperatorPairing)
}

func TestAuthorizeUnclassifiedMethodRequiresAdmin(t *testing.T) {
	err := Authorize("some.future.method", RoleOperator, []string{
		ScopeOperatorRead, ScopeOperatorWrite, ScopeOperatorApprovals, ScopeOperatorPairing,
	})
	require.NotNil(t, err)

	require.Nil(t, Authorize("some.future.method", RoleOperator, []string{ScopeAdmin}))
}

// TestAuthorizeIsPure asserts the resolver never mutates its inputs and
// returns identical verdicts for identical inputs (P3/P4 from spec.md §8).
func TestAuthorizeIsPure(t *testing.T) {
	scopes := []string{ScopeOperatorRead}
	before := append([]string(nil), scopes...)

	first := Authorize("health", RoleOperator, scopes)
	second := Authorize("health", RoleOperator, scopes)

	require.Equal(t, before, scopes)
	require.Equal(t, first, second)
}

func TestMethodClassificationSetsAreDisjoint(t *testing.T) {
	sets := []map[string]bool{NodeMethods, ReadMethods, WriteMethods, ApprovalMethods, PairingMethods}
	seen := map[string]int{}
	for _, set := range sets {
		for method := range set {
			seen[method]++
		}
	}
	for method, count := range seen {
		require.Equal(t, 1, count, "method %q must belong to exactly one classification set", method)
	}
}
