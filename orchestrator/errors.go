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

package orchestrator

import (
	"errors"
)

var (
	ErrIntentNotFound = errors.New("intent not found")
	ErrNotApprover    = errors.New("approver is not an admin of the target contract")
	ErrNotApprovable  = errors.New("intent is not awaiting approval")
	ErrNoHandler      = errors.New("action has no automatic handler")
)

// ValidationError reports a payload rejected before any transaction is
// submitted
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}
