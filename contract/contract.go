// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package contract holds what the campus applications share: the role
// allow-lists, the authorization context, the intent store and method
// dispatch. The applications themselves live in the subpackages.
package contract

import (
	"github.com/algocampus/campusd/ledger"
)

// Shared method names
const (
	MethodSetAdmin         = "set_admin"
	MethodSetFaculty       = "set_faculty"
	MethodRecordAIIntent   = "record_ai_intent"
	MethodCancelAIIntent   = "cancel_ai_intent"
	MethodGetAIIntent      = "get_ai_intent"
	MethodIsAdmin          = "is_admin"
	MethodIsAdminOrFaculty = "is_admin_or_faculty"
)

const globalCounterBoxPrefix = "g:"

// Call is handed to every method implementation
type Call struct {
	*ledger.CallContext
	Auth    Auth
	Args    ledger.Args
	Roles   RoleBoxes
	Intents IntentStore
}

// ConsumeIntent spends the intent named by hash at the current round
func (c *Call) ConsumeIntent(hash []byte) error {
	return c.Intents.Consume(hash, c.Round)
}

// NextID increments a named global counter and returns the new value. The
// first id is 1.
func (c *Call) NextID(name string) (uint64, error) {
	key := ledger.BoxName(globalCounterBoxPrefix + name)
	cur, _, err := c.Boxes.GetUint64(key)
	if err != nil {
		return 0, err
	}
	cur++
	if err := c.Boxes.PutUint64(key, cur); err != nil {
		return 0, err
	}
	return cur, nil
}

type MethodFunc func(*Call) (any, error)

// Methods maps method names to implementations
type Methods map[string]MethodFunc

var sharedMethods = Methods{
	MethodSetAdmin:         setAdmin,
	MethodSetFaculty:       setFaculty,
	MethodRecordAIIntent:   recordAIIntent,
	MethodCancelAIIntent:   cancelAIIntent,
	MethodGetAIIntent:      getAIIntent,
	MethodIsAdmin:          isAdmin,
	MethodIsAdminOrFaculty: isAdminOrFaculty,
}

// Base provides the application lifecycle and dispatch shared by the
// campus contracts
type Base struct {
	methods Methods
}

func NewBase(methods Methods) Base {
	return Base{methods: methods}
}

func (Base) Create(*ledger.CallContext) error {
	return nil
}

// Invoke resolves the caller's authorization context and runs the method
func (b Base) Invoke(
	ctx *ledger.CallContext,
	method string,
	args ledger.Args,
) (any, error) {
	fn, ok := b.methods[method]
	if !ok {
		fn, ok = sharedMethods[method]
	}
	if !ok {
		return nil, ledger.Revertf("%s: %s", ReasonUnknownMethod, method)
	}
	roles := RoleBoxes{Boxes: ctx.Boxes}
	auth, err := NewAuth(ctx.Sender, ctx.Creator, roles)
	if err != nil {
		return nil, err
	}
	return fn(&Call{
		CallContext: ctx,
		Auth:        auth,
		Args:        args,
		Roles:       roles,
		Intents:     IntentStore{Boxes: ctx.Boxes},
	})
}

func setRole(c *Call, role Role) (any, error) {
	addr, err := c.Args.Address(0)
	if err != nil {
		return nil, err
	}
	enabled, err := c.Args.Bool(1)
	if err != nil {
		return nil, err
	}
	return nil, c.Roles.SetRole(role, addr, enabled)
}

func setAdmin(c *Call) (any, error) {
	if err := c.Auth.RequireCreator(); err != nil {
		return nil, err
	}
	return setRole(c, RoleAdmin)
}

func setFaculty(c *Call) (any, error) {
	if err := c.Auth.RequireAdmin(); err != nil {
		return nil, err
	}
	return setRole(c, RoleFaculty)
}

func recordAIIntent(c *Call) (any, error) {
	if err := c.Auth.RequireAdminOrFaculty(); err != nil {
		return nil, err
	}
	hash, err := c.Args.Bytes(0)
	if err != nil {
		return nil, err
	}
	expires, err := c.Args.Uint64(1)
	if err != nil {
		return nil, err
	}
	if err := c.Intents.Record(hash, expires, c.Round); err != nil {
		return nil, err
	}
	return true, nil
}

func cancelAIIntent(c *Call) (any, error) {
	if err := c.Auth.RequireAdminOrFaculty(); err != nil {
		return nil, err
	}
	hash, err := c.Args.Bytes(0)
	if err != nil {
		return nil, err
	}
	if err := c.Intents.Cancel(hash); err != nil {
		return nil, err
	}
	return true, nil
}

func getAIIntent(c *Call) (any, error) {
	hash, err := c.Args.Bytes(0)
	if err != nil {
		return nil, err
	}
	state, ok, err := c.Intents.Get(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.Revert(ReasonIntentNotFound)
	}
	return state, nil
}

func isAdmin(c *Call) (any, error) {
	addr, err := c.Args.Address(0)
	if err != nil {
		return nil, err
	}
	auth, err := NewAuth(addr, c.Creator, c.Roles)
	if err != nil {
		return nil, err
	}
	return auth.IsAdmin(), nil
}

func isAdminOrFaculty(c *Call) (any, error) {
	addr, err := c.Args.Address(0)
	if err != nil {
		return nil, err
	}
	auth, err := NewAuth(addr, c.Creator, c.Roles)
	if err != nil {
		return nil, err
	}
	return auth.IsAdminOrFaculty(), nil
}

// RequireRoundRange rejects windows whose start is not before their end
func RequireRoundRange(start uint64, end uint64) error {
	if start >= end {
		return ledger.Revert(ReasonBadRoundRange)
	}
	return nil
}
