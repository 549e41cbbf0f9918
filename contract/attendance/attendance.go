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

// Package attendance implements class sessions that students check in to
// while the session's round window is open
package attendance

import (
	"github.com/algocampus/campusd/contract"
	"github.com/algocampus/campusd/ledger"
)

const (
	Kind = "attendance"
	Name = "AttendanceContract"
)

const (
	MethodCreateSession   = "create_session"
	MethodCreateSessionAI = "create_session_ai"
	MethodCheckIn         = "check_in"
	MethodIsPresent       = "is_present"
	MethodGetSession      = "get_session"
)

const (
	ReasonSessionNotFound  = "session not found"
	ReasonNotOpenYet       = "not open yet"
	ReasonClosed           = "closed"
	ReasonAlreadyCheckedIn = "already checked in"
)

const (
	boxCourse       = "sc"
	boxTimestamp    = "st"
	boxOpen         = "so"
	boxClose        = "se"
	boxRecord       = "r"
	counterSessions = "sessions"
)

// SessionInfo is returned by get_session
type SessionInfo struct {
	CourseCode string
	SessionTs  uint64
	OpenRound  uint64
	CloseRound uint64
}

func init() {
	ledger.RegisterApplication(Kind, New)
}

func New() ledger.Application {
	return contract.NewBase(contract.Methods{
		MethodCreateSession:   createSession,
		MethodCreateSessionAI: createSessionAI,
		MethodCheckIn:         checkIn,
		MethodIsPresent:       isPresent,
		MethodGetSession:      getSession,
	})
}

func parseSession(c *contract.Call) (SessionInfo, error) {
	var s SessionInfo
	var err error
	if s.CourseCode, err = c.Args.String(0); err != nil {
		return s, err
	}
	if s.SessionTs, err = c.Args.Uint64(1); err != nil {
		return s, err
	}
	if s.OpenRound, err = c.Args.Uint64(2); err != nil {
		return s, err
	}
	if s.CloseRound, err = c.Args.Uint64(3); err != nil {
		return s, err
	}
	return s, contract.RequireRoundRange(s.OpenRound, s.CloseRound)
}

func createSession(c *contract.Call) (any, error) {
	if err := c.Auth.RequireAdminOrFaculty(); err != nil {
		return nil, err
	}
	s, err := parseSession(c)
	if err != nil {
		return nil, err
	}
	return storeSession(c, s)
}

func createSessionAI(c *contract.Call) (any, error) {
	if err := c.Auth.RequireAdminOrFaculty(); err != nil {
		return nil, err
	}
	s, err := parseSession(c)
	if err != nil {
		return nil, err
	}
	hash, err := c.Args.Bytes(4)
	if err != nil {
		return nil, err
	}
	if err := c.ConsumeIntent(hash); err != nil {
		return nil, err
	}
	return storeSession(c, s)
}

func storeSession(c *contract.Call, s SessionInfo) (uint64, error) {
	id, err := c.NextID(counterSessions)
	if err != nil {
		return 0, err
	}
	sid := ledger.Itob(id)
	if err := c.Boxes.Put(ledger.BoxName(boxCourse, sid), []byte(s.CourseCode)); err != nil {
		return 0, err
	}
	if err := c.Boxes.PutUint64(ledger.BoxName(boxTimestamp, sid), s.SessionTs); err != nil {
		return 0, err
	}
	if err := c.Boxes.PutUint64(ledger.BoxName(boxOpen, sid), s.OpenRound); err != nil {
		return 0, err
	}
	if err := c.Boxes.PutUint64(ledger.BoxName(boxClose, sid), s.CloseRound); err != nil {
		return 0, err
	}
	return id, nil
}

func checkIn(c *contract.Call) (any, error) {
	sessionID, err := c.Args.Uint64(0)
	if err != nil {
		return nil, err
	}
	sid := ledger.Itob(sessionID)
	open, ok, err := c.Boxes.GetUint64(ledger.BoxName(boxOpen, sid))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.Revert(ReasonSessionNotFound)
	}
	if c.Round < open {
		return nil, ledger.Revert(ReasonNotOpenYet)
	}
	closeRound, _, err := c.Boxes.GetUint64(ledger.BoxName(boxClose, sid))
	if err != nil {
		return nil, err
	}
	if c.Round > closeRound {
		return nil, ledger.Revert(ReasonClosed)
	}
	key := ledger.BoxName(boxRecord, sid, c.Sender[:])
	present, err := c.Boxes.Has(key)
	if err != nil {
		return nil, err
	}
	if present {
		return nil, ledger.Revert(ReasonAlreadyCheckedIn)
	}
	if err := c.Boxes.Put(key, []byte{1}); err != nil {
		return nil, err
	}
	return true, nil
}

func isPresent(c *contract.Call) (any, error) {
	sessionID, err := c.Args.Uint64(0)
	if err != nil {
		return nil, err
	}
	addr, err := c.Args.Address(1)
	if err != nil {
		return nil, err
	}
	return c.Boxes.Has(ledger.BoxName(boxRecord, ledger.Itob(sessionID), addr[:]))
}

func getSession(c *contract.Call) (any, error) {
	sessionID, err := c.Args.Uint64(0)
	if err != nil {
		return nil, err
	}
	sid := ledger.Itob(sessionID)
	course, ok, err := c.Boxes.Get(ledger.BoxName(boxCourse, sid))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.Revert(ReasonSessionNotFound)
	}
	ret := SessionInfo{CourseCode: string(course)}
	if ret.SessionTs, _, err = c.Boxes.GetUint64(ledger.BoxName(boxTimestamp, sid)); err != nil {
		return nil, err
	}
	if ret.OpenRound, _, err = c.Boxes.GetUint64(ledger.BoxName(boxOpen, sid)); err != nil {
		return nil, err
	}
	if ret.CloseRound, _, err = c.Boxes.GetUint64(ledger.BoxName(boxClose, sid)); err != nil {
		return nil, err
	}
	return ret, nil
}
