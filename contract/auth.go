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

package contract

import (
	"github.com/algocampus/campusd/ledger"
)

type Role string

const (
	RoleAdmin   Role = "adm"
	RoleFaculty Role = "fac"
)

// RoleStore answers allow-list membership questions
type RoleStore interface {
	HasRole(role Role, addr ledger.Address) (bool, error)
}

// Auth is the authorization context of a single call. It is resolved once
// from the sender, the immutable creator and the role allow-lists, then
// passed to every method.
type Auth struct {
	Sender  ledger.Address
	Creator ledger.Address
	admin   bool
	faculty bool
}

// NewAuth resolves the roles held by sender
func NewAuth(sender ledger.Address, creator ledger.Address, roles RoleStore) (Auth, error) {
	a := Auth{Sender: sender, Creator: creator}
	var err error
	if a.admin, err = roles.HasRole(RoleAdmin, sender); err != nil {
		return a, err
	}
	if a.faculty, err = roles.HasRole(RoleFaculty, sender); err != nil {
		return a, err
	}
	return a, nil
}

func (a Auth) IsCreator() bool {
	return a.Sender == a.Creator
}

// IsAdmin is true for the creator regardless of the admin allow-list
func (a Auth) IsAdmin() bool {
	return a.IsCreator() || a.admin
}

func (a Auth) IsAdminOrFaculty() bool {
	return a.IsAdmin() || a.faculty
}

func (a Auth) RequireCreator() error {
	if !a.IsCreator() {
		return ledger.Revert(ReasonOnlyCreator)
	}
	return nil
}

func (a Auth) RequireAdmin() error {
	if !a.IsAdmin() {
		return ledger.Revert(ReasonOnlyAdmin)
	}
	return nil
}

func (a Auth) RequireAdminOrFaculty() error {
	if !a.IsAdminOrFaculty() {
		return ledger.Revert(ReasonNotAuthorised)
	}
	return nil
}

// RoleBoxes keeps the admin and faculty allow-lists in application boxes
type RoleBoxes struct {
	Boxes *ledger.BoxStore
}

func roleBox(role Role, addr ledger.Address) []byte {
	return ledger.BoxName(string(role), addr[:])
}

func (r RoleBoxes) HasRole(role Role, addr ledger.Address) (bool, error) {
	return r.Boxes.Has(roleBox(role, addr))
}

// SetRole adds or removes an address. Removing an absent address is a no-op.
func (r RoleBoxes) SetRole(role Role, addr ledger.Address, enabled bool) error {
	if enabled {
		return r.Boxes.Put(roleBox(role, addr), []byte{1})
	}
	return r.Boxes.Delete(roleBox(role, addr))
}
