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

// Package policy classifies planned actions by risk and decides whether
// they may run without approval
package policy

import (
	"fmt"
	"slices"
)

type ActionType string

const (
	ActionFacultyPoll      ActionType = "faculty_poll_plan"
	ActionFacultySession   ActionType = "faculty_session_plan"
	ActionFacultyCert      ActionType = "faculty_certificate_plan"
	ActionAdminRoleRisk    ActionType = "admin_role_risk_plan"
	ActionAdminSystem      ActionType = "admin_system_remediation_plan"
	ActionCoordinationTask ActionType = "coordination_task_plan"
)

// ActionTypes lists every known action type
var ActionTypes = []ActionType{
	ActionFacultyPoll,
	ActionFacultySession,
	ActionFacultyCert,
	ActionAdminRoleRisk,
	ActionAdminSystem,
	ActionCoordinationTask,
}

// ParseActionType rejects unknown action types
func ParseActionType(s string) (ActionType, error) {
	ret := ActionType(s)
	if !slices.Contains(ActionTypes, ret) {
		return "", fmt.Errorf("unknown action type: %q", s)
	}
	return ret, nil
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

type ExecutionMode string

const (
	ModeAuto             ExecutionMode = "AUTO"
	ModeApprovalRequired ExecutionMode = "APPROVAL_REQUIRED"
)

var riskTable = map[ActionType]RiskLevel{
	ActionFacultyPoll:    RiskLow,
	ActionFacultySession: RiskLow,
	ActionFacultyCert:    RiskHigh,
	ActionAdminRoleRisk:  RiskHigh,
	ActionAdminSystem:    RiskMedium,
}

// InferRisk classifies an action. Unlisted actions are MEDIUM.
func InferRisk(actionType ActionType) RiskLevel {
	if risk, ok := riskTable[actionType]; ok {
		return risk
	}
	return RiskMedium
}

// Mode returns AUTO only for a LOW risk action when auto execution was
// both requested and enabled
func Mode(actionType ActionType, autoRequested bool, autoEnabled bool) ExecutionMode {
	if autoRequested && autoEnabled && InferRisk(actionType) == RiskLow {
		return ModeAuto
	}
	return ModeApprovalRequired
}
