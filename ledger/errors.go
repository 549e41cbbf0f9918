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

package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrAppNotFound       = errors.New("application not found")
	ErrUnknownAppKind    = errors.New("unknown application kind")
	ErrTxNotFound        = errors.New("transaction not found")
	ErrAssetNotFound     = errors.New("asset not found")
	ErrRoundNotAhead     = errors.New("target round is not ahead of the current round")
	ErrLedgerClosed      = errors.New("ledger closed")
	ErrBadArgument       = errors.New("bad argument")
	ErrBoxNameTooLong    = errors.New("box name too long")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// RevertError is returned when an application rejects a call. Nothing the
// call wrote is kept.
type RevertError struct {
	cause  error
	Method string
	Reason string
	AppID  uint64
}

func (e *RevertError) Error() string {
	if e.Method == "" {
		return "reverted: " + e.Reason
	}
	return fmt.Sprintf(
		"app %d: %s reverted: %s",
		e.AppID,
		e.Method,
		e.Reason,
	)
}

func (e *RevertError) Unwrap() error {
	return e.cause
}

// Revert aborts the current call with the given reason
func Revert(reason string) error {
	return &RevertError{Reason: reason}
}

func Revertf(format string, args ...any) error {
	return &RevertError{Reason: fmt.Sprintf(format, args...)}
}

// RevertReason extracts the reason from a revert anywhere in err's chain
func RevertReason(err error) (string, bool) {
	var revertErr *RevertError
	if errors.As(err, &revertErr) {
		return revertErr.Reason, true
	}
	return "", false
}

// IsRevert reports whether err is a revert with the given reason
func IsRevert(err error, reason string) bool {
	r, ok := RevertReason(err)
	return ok && r == reason
}
