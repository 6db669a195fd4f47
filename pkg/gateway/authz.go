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

// Method classification sets (component D). These are closed sets; any
// registered method not present in one of the four operator sets below
// requires the admin scope.

// NodeMethods may only be called by role == "node".
var NodeMethods = map[string]bool{
	"node.invoke.result": true,
	"node.event":         true,
	"skills.bins":        true,
}

// ReadMethods require operator.read (or operator.write, which subsumes
// read).
var ReadMethods = map[string]bool{
	"health":              true,
	"logs.tail":           true,
	"channels.status":     true,
	"status":              true,
	"usage.status":        true,
	"usage.cost":          true,
	"tts.status":          true,
	"tts.providers":       true,
	"models.list":         true,
	"agents.list":         true,
	"agent.identity.get":  true,
	"skills.status":       true,
	"voicewake.get":       true,
	"sessions.list":       true,
	"sessions.preview":    true,
	"cron.list":           true,
	"cron.status":         true,
	"cron.runs":           true,
	"system-presence":     true,
	"last-heartbeat":      true,
	"node.list":           true,
	"node.describe":       true,
	"chat.history":        true,
}

// WriteMethods require operator.write.
var WriteMethods = map[string]bool{
	"send":               true,
	"agent":              true,
	"agent.wait":         true,
	"wake":                true,
	"talk.mode":          true,
	"tts.enable":         true,
	"tts.disable":        true,
	"tts.convert":        true,
	"tts.setProvider":    true,
	"voicewake.set":      true,
	"node.invoke":        true,
	"chat.send":          true,
	"chat.abort":         true,
	"browser.request":    true,
}

// ApprovalMethods require operator.approvals.
var ApprovalMethods = map[string]bool{
	"exec.approval.request": true,
	"exec.approval.resolve": true,
}

// PairingMethods require operator.pairing.
var PairingMethods = map[string]bool{
	"node.pair.request":  true,
	"node.pair.list":     true,
	"node.pair.approve":  true,
	"node.pair.reject":   true,
	"node.pair.verify":   true,
	"device.pair.list":   true,
	"device.pair.approve": true,
	"device.pair.reject":  true,
	"device.token.rotate": true,
	"device.token.revoke": true,
	"node.rename":         true,
}

// Authorize is the pure authorization resolver (component D): given a
// method name, the caller's role, and the caller's scopes, it returns nil
// when the call is permitted, or an ErrorShape naming the denial reason.
//
// Resolution order exactly matches spec.md §4.4:
//  1. node-only methods require role == "node"
//  2. role == "node" may call nothing else
//  3. role must be "operator" for anything beyond that
//  4. the admin scope grants everything
//  5. otherwise the method is classified into approvals/pairing/read/write
//  6. anything not in one of those four sets requires admin
func Authorize(method, role string, scopes []string) *ErrorShape {
	if NodeMethods[method] {
		if role == RoleNode {
			return nil
		}
		return NewErrorShape(ErrCodeInvalidRequest, "unauthorized role: "+role)
	}

	if role == RoleNode {
		return NewErrorShape(ErrCodeInvalidRequest, "unauthorized role: "+role)
	}
	if role != RoleOperator {
		return NewErrorShape(ErrCodeInvalidRequest, "unauthorized role: "+role)
	}

	has := func(scope string) bool {
		for _, s := range scopes {
			if s == scope {
				return true
			}
		}
		return false
	}

	if has(ScopeAdmin) {
		return nil
	}

	switch {
	case ApprovalMethods[method]:
		if !has(ScopeOperatorApprovals) {
			return NewErrorShape(ErrCodeInvalidRequest, "missing scope: "+ScopeOperatorApprovals)
		}
		return nil
	case PairingMethods[method]:
		if !has(ScopeOperatorPairing) {
			return NewErrorShape(ErrCodeInvalidRequest, "missing scope: "+ScopeOperatorPairing)
		}
		return nil
	case ReadMethods[method]:
		if !has(ScopeOperatorRead) && !has(ScopeOperatorWrite) {
			return NewErrorShape(ErrCodeInvalidRequest, "missing scope: "+ScopeOperatorRead)
		}
		return nil
	case WriteMethods[method]:
		if !has(ScopeOperatorWrite) {
			return NewErrorShape(ErrCodeInvalidRequest, "missing scope: "+ScopeOperatorWrite)
		}
		return nil
	default:
		return NewErrorShape(ErrCodeInvalidRequest, "missing scope: operator.admin")
	}
}
