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

// Package orchestrator drives the off-chain intent lifecycle: it builds
// plans, classifies them, commits their hashes on-chain and executes the
// gated contract calls while keeping an audit trail of every attempt.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/algocampus/campusd/canonical"
	"github.com/algocampus/campusd/certmeta"
	"github.com/algocampus/campusd/contract"
	"github.com/algocampus/campusd/database"
	"github.com/algocampus/campusd/database/models"
	"github.com/algocampus/campusd/event"
	"github.com/algocampus/campusd/ledger"
	"github.com/algocampus/campusd/onchain"
	"github.com/algocampus/campusd/planner"
	"github.com/algocampus/campusd/policy"
	"github.com/algocampus/campusd/txtrack"
)

const (
	DefaultIntentExpiryRounds uint64 = 30

	tracerName          = "github.com/algocampus/campusd/orchestrator"
	intentIDPrefix      = "intent-"
	executionIDPrefix   = "exec-"
	idHexLength         = 12
	maxDescriptionRunes = 180
)

// Chain is the on-chain surface used by the orchestrator
type Chain interface {
	CurrentRound() uint64
	Manifest() onchain.Manifest
	RecordIntent(ctx context.Context, contractName string, hash []byte, expires uint64) (string, error)
	CancelIntent(ctx context.Context, contractName string, hash []byte) (string, error)
	GetIntent(ctx context.Context, contractName string, hash []byte) (contract.IntentState, bool, error)
	CreatePollAI(ctx context.Context, p onchain.PollParams, intentHash []byte) (uint64, string, error)
	CreateSessionAI(ctx context.Context, p onchain.SessionParams, intentHash []byte) (uint64, string, error)
	MintAndRegisterAI(
		ctx context.Context,
		certHash []byte,
		recipient ledger.Address,
		metadataURL string,
		issuedTs uint64,
		intentHash []byte,
	) (uint64, string, error)
	RegisterCertAI(
		ctx context.Context,
		certHash []byte,
		recipient ledger.Address,
		assetID uint64,
		issuedTs uint64,
		intentHash []byte,
	) (string, error)
	IsAdmin(ctx context.Context, contractName string, addr ledger.Address) (bool, error)
}

// Tracker follows a submitted transaction until it confirms
type Tracker interface {
	Track(ctx context.Context, txID string, kind string, attrs txtrack.Attrs) error
}

type Config struct {
	DB                 *database.Database
	Chain              Chain
	Generator          planner.Generator
	Tracker            Tracker
	Publisher          certmeta.Publisher
	EventBus           *event.EventBus
	Logger             *slog.Logger
	PromRegistry       prometheus.Registerer
	TracerProvider     trace.TracerProvider
	Now                func() time.Time
	IntentExpiryRounds uint64
	AutoExecuteLowRisk bool
}

type Orchestrator struct {
	config  Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics orchestratorMetrics
}

type PlanRequest struct {
	Context     map[string]any
	ActionType  policy.ActionType
	Prompt      string
	AutoExecute bool
}

type PlanResponse struct {
	Plan          map[string]any       `json:"plan"`
	IntentID      string               `json:"intent_id"`
	IntentHash    string               `json:"intent_hash"`
	ActionType    policy.ActionType    `json:"action_type"`
	RiskLevel     policy.RiskLevel     `json:"risk_level"`
	ExecutionMode policy.ExecutionMode `json:"execution_mode"`
	Message       string               `json:"message"`
}

type ExecuteResponse struct {
	IntentID      string               `json:"intent_id"`
	Status        string               `json:"status"`
	RiskLevel     policy.RiskLevel     `json:"risk_level"`
	ExecutionMode policy.ExecutionMode `json:"execution_mode"`
	TxID          string               `json:"tx_id,omitempty"`
	Message       string               `json:"message"`
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.DB == nil {
		return nil, errors.New("orchestrator requires a database")
	}
	if cfg.Chain == nil {
		return nil, errors.New("orchestrator requires a chain client")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Generator == nil {
		cfg.Generator = planner.Fallback{}
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IntentExpiryRounds == 0 {
		cfg.IntentExpiryRounds = DefaultIntentExpiryRounds
	}
	o := &Orchestrator{
		config: cfg,
		logger: cfg.Logger,
		tracer: cfg.TracerProvider.Tracer(tracerName),
	}
	o.metrics.init(cfg.PromRegistry)
	return o, nil
}

// CreatePlan classifies and persists a new intent. AUTO intents are
// executed before returning.
func (o *Orchestrator) CreatePlan(
	ctx context.Context,
	req PlanRequest,
	actor string,
) (PlanResponse, error) {
	actionType, err := policy.ParseActionType(string(req.ActionType))
	if err != nil {
		return PlanResponse{}, invalid(err.Error())
	}
	ctx, span := o.tracer.Start(
		ctx,
		"orchestrator.CreatePlan",
		trace.WithAttributes(attribute.String("action_type", string(actionType))),
	)
	defer span.End()

	risk := policy.InferRisk(actionType)
	mode := policy.Mode(actionType, req.AutoExecute, o.config.AutoExecuteLowRisk)
	planCtx := req.Context
	if planCtx == nil {
		planCtx = map[string]any{}
	}
	generated, err := o.config.Generator.Generate(ctx, planner.Request{
		ActionType: actionType,
		Prompt:     req.Prompt,
		Context:    planCtx,
	})
	if err != nil {
		spanError(span, err)
		return PlanResponse{}, fmt.Errorf("generate plan: %w", err)
	}
	actionPayload, ok := planCtx["payload"]
	if !ok || actionPayload == nil {
		actionPayload = map[string]any{}
	}
	payload := map[string]any{
		"prompt":    req.Prompt,
		"context":   planCtx,
		"generated": generated,
		"payload":   actionPayload,
	}
	digest, err := canonical.Hash(map[string]any{
		"action_type": string(actionType),
		"payload":     payload,
	})
	if err != nil {
		spanError(span, err)
		return PlanResponse{}, err
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		spanError(span, err)
		return PlanResponse{}, fmt.Errorf("encode payload: %w", err)
	}
	intentID := newID(intentIDPrefix)
	span.SetAttributes(attribute.String("intent.id", intentID))
	db := o.config.DB
	err = db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := db.AddIntent(&models.Intent{
			IntentId:    intentID,
			IntentHash:  digest.Hex(),
			ActionType:  string(actionType),
			RiskLevel:   string(risk),
			PayloadJson: string(payloadJSON),
			Status:      models.IntentStatusPlanned,
			CreatedBy:   actor,
			AutoExecute: mode == policy.ModeAuto,
		}, txn); err != nil {
			return err
		}
		evt := &models.ActivityEvent{
			Kind:        models.ActivityPlanCreated,
			Title:       fmt.Sprintf("AI plan created (%s)", actionType),
			Description: truncate(req.Prompt, maxDescriptionRunes),
			Actor:       actor,
		}
		evt.SetTags([]string{"ai", "intent:" + intentID, "risk:" + string(risk)})
		return db.AddActivity(evt, txn)
	})
	if err != nil {
		spanError(span, err)
		return PlanResponse{}, fmt.Errorf("persist intent: %w", err)
	}
	o.metrics.plans.WithLabelValues(string(actionType)).Inc()
	o.publishStatus(intentID, string(actionType), models.IntentStatusPlanned, "")
	o.logger.Info(
		"plan created",
		"component", "orchestrator",
		"intent_id", intentID,
		"action_type", string(actionType),
		"risk", string(risk),
		"mode", string(mode),
		"provider", o.config.Generator.Name(),
	)

	message := "plan created"
	if mode == policy.ModeAuto {
		res, err := o.ExecuteIntent(ctx, intentID, actor)
		if err != nil {
			spanError(span, err)
			return PlanResponse{}, err
		}
		message = "auto execution status: " + res.Status
	}
	return PlanResponse{
		IntentID:      intentID,
		IntentHash:    digest.Hex(),
		ActionType:    actionType,
		RiskLevel:     risk,
		ExecutionMode: mode,
		Plan: map[string]any{
			"generated": generated,
			"payload":   actionPayload,
		},
		Message: message,
	}, nil
}

// ExecuteIntent runs a stored intent. The returned status is always
// terminal: executed, failed or approval_required.
func (o *Orchestrator) ExecuteIntent(
	ctx context.Context,
	intentID string,
	actor string,
) (ExecuteResponse, error) {
	ctx, span := o.tracer.Start(
		ctx,
		"orchestrator.ExecuteIntent",
		trace.WithAttributes(attribute.String("intent.id", intentID)),
	)
	defer span.End()
	intent, err := o.GetIntent(intentID)
	if err != nil {
		spanError(span, err)
		return ExecuteResponse{}, err
	}
	risk := policy.RiskLevel(intent.RiskLevel)
	mode := intentMode(intent)
	if intent.IsTerminal() {
		return o.replay(intent, actor)
	}
	// Only Approve dispatches non-LOW intents, whatever the stored mode
	if risk != policy.RiskLow {
		return o.requireApproval(intent, "high-risk action requires manual approval")
	}
	return o.dispatch(ctx, intent, actor, mode)
}

// Approve executes an intent on behalf of an admin of its target contract
func (o *Orchestrator) Approve(
	ctx context.Context,
	intentID string,
	approver ledger.Address,
	actor string,
) (ExecuteResponse, error) {
	ctx, span := o.tracer.Start(
		ctx,
		"orchestrator.Approve",
		trace.WithAttributes(attribute.String("intent.id", intentID)),
	)
	defer span.End()
	intent, err := o.GetIntent(intentID)
	if err != nil {
		spanError(span, err)
		return ExecuteResponse{}, err
	}
	if intent.Status != models.IntentStatusPlanned &&
		intent.Status != models.IntentStatusApprovalRequired {
		return ExecuteResponse{}, fmt.Errorf("%w: %s is %s", ErrNotApprovable, intentID, intent.Status)
	}
	contractName, ok := ContractFor(policy.ActionType(intent.ActionType))
	if !ok {
		return ExecuteResponse{}, fmt.Errorf("%w: %s", ErrNoHandler, intent.ActionType)
	}
	isAdmin, err := o.config.Chain.IsAdmin(ctx, contractName, approver)
	if err != nil {
		spanError(span, err)
		return ExecuteResponse{}, fmt.Errorf("check approver: %w", err)
	}
	if !isAdmin {
		return ExecuteResponse{}, fmt.Errorf("%w: %s", ErrNotApprover, approver)
	}
	evt := &models.ActivityEvent{
		Kind:        models.ActivityApproved,
		Title:       fmt.Sprintf("AI intent approved (%s)", intent.ActionType),
		Description: "approved by " + approver.String(),
		Actor:       actor,
	}
	evt.SetTags([]string{"ai", "intent:" + intentID, "risk:" + intent.RiskLevel})
	if err := o.config.DB.AddActivity(evt, nil); err != nil {
		return ExecuteResponse{}, err
	}
	o.logger.Info(
		"intent approved",
		"component", "orchestrator",
		"intent_id", intentID,
		"approver", approver.String(),
	)
	return o.dispatch(ctx, intent, actor, intentMode(intent))
}

func (o *Orchestrator) GetIntent(intentID string) (models.Intent, error) {
	intent, err := o.config.DB.GetIntent(intentID, nil)
	if err != nil {
		if errors.Is(err, models.ErrIntentNotFound) {
			return intent, fmt.Errorf("%w: %s", ErrIntentNotFound, intentID)
		}
		return intent, err
	}
	return intent, nil
}

// ListExecutions returns the audit records of an intent, oldest first
func (o *Orchestrator) ListExecutions(intentID string) ([]models.Execution, error) {
	if _, err := o.GetIntent(intentID); err != nil {
		return nil, err
	}
	return o.config.DB.ListExecutions(intentID, nil)
}

func intentMode(intent models.Intent) policy.ExecutionMode {
	if intent.AutoExecute {
		return policy.ModeAuto
	}
	return policy.ModeApprovalRequired
}

// replay records a rejected attempt against an intent that already reached a
// terminal state. The stored status is left alone.
func (o *Orchestrator) replay(intent models.Intent, actor string) (ExecuteResponse, error) {
	message := contract.ReasonIntentUsed
	err := o.config.DB.AddExecution(&models.Execution{
		ExecutionId: newID(executionIDPrefix),
		IntentId:    intent.IntentId,
		Status:      models.IntentStatusFailed,
		Message:     message,
	}, nil)
	if err != nil {
		return ExecuteResponse{}, err
	}
	o.metrics.executions.WithLabelValues(models.IntentStatusFailed).Inc()
	o.logger.Warn(
		"rejected execution of finished intent",
		"component", "orchestrator",
		"intent_id", intent.IntentId,
		"status", intent.Status,
		"actor", actor,
	)
	return ExecuteResponse{
		IntentID:      intent.IntentId,
		Status:        models.IntentStatusFailed,
		RiskLevel:     policy.RiskLevel(intent.RiskLevel),
		ExecutionMode: intentMode(intent),
		Message:       message,
	}, nil
}

func (o *Orchestrator) requireApproval(intent models.Intent, message string) (ExecuteResponse, error) {
	err := o.config.DB.UpdateIntentStatus(intent.IntentId, models.IntentStatusApprovalRequired, nil)
	if err != nil {
		return ExecuteResponse{}, err
	}
	o.metrics.executions.WithLabelValues(models.IntentStatusApprovalRequired).Inc()
	o.publishStatus(intent.IntentId, intent.ActionType, models.IntentStatusApprovalRequired, "")
	return ExecuteResponse{
		IntentID:      intent.IntentId,
		Status:        models.IntentStatusApprovalRequired,
		RiskLevel:     policy.RiskLevel(intent.RiskLevel),
		ExecutionMode: policy.ModeApprovalRequired,
		Message:       message,
	}, nil
}

func (o *Orchestrator) dispatch(
	ctx context.Context,
	intent models.Intent,
	actor string,
	mode policy.ExecutionMode,
) (ExecuteResponse, error) {
	actionType := policy.ActionType(intent.ActionType)
	h, ok := handlers[actionType]
	if !ok {
		return o.requireApproval(intent, "action requires explicit approval workflow")
	}
	a := &action{
		intent:   intent,
		actor:    actor,
		contract: h.contract,
	}
	res := ExecuteResponse{
		IntentID:      intent.IntentId,
		RiskLevel:     policy.RiskLevel(intent.RiskLevel),
		ExecutionMode: mode,
	}
	out, err := o.run(ctx, a, h)
	if err != nil {
		return o.fail(ctx, a, res, err)
	}
	return o.succeed(ctx, a, res, out)
}

func (o *Orchestrator) run(ctx context.Context, a *action, h handler) (outcome, error) {
	var err error
	if a.hash, err = canonical.ParseDigest(a.intent.IntentHash); err != nil {
		return outcome{}, err
	}
	if a.payload, err = decodeActionPayload(a.intent.PayloadJson); err != nil {
		return outcome{}, err
	}
	return h.execute(o, ctx, a)
}

func (o *Orchestrator) succeed(
	ctx context.Context,
	a *action,
	res ExecuteResponse,
	out outcome,
) (ExecuteResponse, error) {
	intent := a.intent
	db := o.config.DB
	duplicate := false
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		current, err := db.GetIntent(intent.IntentId, txn)
		if err != nil {
			return err
		}
		// A reconciliation sweep may have observed the consumed intent first
		if current.Status == models.IntentStatusExecuted {
			duplicate = true
			return nil
		}
		if err := db.UpdateIntentStatus(intent.IntentId, models.IntentStatusExecuted, txn); err != nil {
			return err
		}
		if err := db.AddExecution(&models.Execution{
			ExecutionId: newID(executionIDPrefix),
			IntentId:    intent.IntentId,
			Status:      models.IntentStatusExecuted,
			Message:     out.message,
			TxId:        out.txID,
		}, txn); err != nil {
			return err
		}
		evt := &models.ActivityEvent{
			Kind:        models.ActivityExecution,
			Title:       fmt.Sprintf("AI execution (%s)", intent.ActionType),
			Description: out.message,
			Actor:       a.actor,
			TxId:        out.txID,
		}
		tags := []string{"ai", "intent:" + intent.IntentId, "risk:" + intent.RiskLevel}
		evt.SetTags(append(tags, out.tags...))
		return db.AddActivity(evt, txn)
	})
	if err != nil {
		// The chain already holds the result; the reconciliation sweep
		// repairs the stored status.
		o.logger.Error(
			"failed to record successful execution",
			"component", "orchestrator",
			"intent_id", intent.IntentId,
			"tx_id", out.txID,
			"error", err,
		)
		return res, fmt.Errorf("record execution of %s: %w", intent.IntentId, err)
	}
	if duplicate {
		o.logger.Warn(
			"intent already marked executed, skipping execution record",
			"component", "orchestrator",
			"intent_id", intent.IntentId,
			"tx_id", out.txID,
		)
	} else {
		o.metrics.executions.WithLabelValues(models.IntentStatusExecuted).Inc()
		o.publishStatus(intent.IntentId, intent.ActionType, models.IntentStatusExecuted, out.txID)
	}
	if o.config.Tracker != nil && out.txID != "" {
		if err := o.config.Tracker.Track(ctx, out.txID, models.TxKindAction, txtrack.Attrs{}); err != nil {
			o.logger.Warn(
				"failed to track transaction",
				"component", "orchestrator",
				"tx_id", out.txID,
				"error", err,
			)
		}
	}
	o.logger.Info(
		out.message,
		"component", "orchestrator",
		"intent_id", intent.IntentId,
		"tx_id", out.txID,
	)
	res.Status = models.IntentStatusExecuted
	res.TxID = out.txID
	res.Message = out.message
	return res, nil
}

func (o *Orchestrator) fail(
	ctx context.Context,
	a *action,
	res ExecuteResponse,
	cause error,
) (ExecuteResponse, error) {
	intent := a.intent
	message := failureMessage(cause)
	if a.recorded && !a.consumed {
		if _, err := o.config.Chain.CancelIntent(ctx, a.contract, a.hash.Bytes()); err != nil {
			o.logger.Warn(
				"failed to cancel unused intent",
				"component", "orchestrator",
				"intent_id", intent.IntentId,
				"contract", a.contract,
				"error", err,
			)
		}
	}
	db := o.config.DB
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := db.UpdateIntentStatus(intent.IntentId, models.IntentStatusFailed, txn); err != nil {
			return err
		}
		if err := db.AddExecution(&models.Execution{
			ExecutionId: newID(executionIDPrefix),
			IntentId:    intent.IntentId,
			Status:      models.IntentStatusFailed,
			Message:     message,
			TxId:        a.txID,
		}, txn); err != nil {
			return err
		}
		evt := &models.ActivityEvent{
			Kind:        models.ActivityExecutionFailed,
			Title:       fmt.Sprintf("AI execution failed (%s)", intent.ActionType),
			Description: message,
			Actor:       a.actor,
			TxId:        a.txID,
		}
		evt.SetTags([]string{"ai", "intent:" + intent.IntentId, "failed"})
		return db.AddActivity(evt, txn)
	})
	if err != nil {
		return res, fmt.Errorf("record failed execution of %s: %w", intent.IntentId, err)
	}
	o.metrics.executions.WithLabelValues(models.IntentStatusFailed).Inc()
	o.publishStatus(intent.IntentId, intent.ActionType, models.IntentStatusFailed, "")
	o.logger.Warn(
		"intent execution failed",
		"component", "orchestrator",
		"intent_id", intent.IntentId,
		"error", cause,
	)
	res.Status = models.IntentStatusFailed
	res.TxID = a.txID
	res.Message = message
	return res, nil
}

// failureMessage reports contract rejections by their reason
func failureMessage(err error) string {
	if reason, ok := ledger.RevertReason(err); ok {
		return reason
	}
	return err.Error()
}

func (o *Orchestrator) publishStatus(intentID string, actionType string, status string, txID string) {
	if o.config.EventBus == nil {
		return
	}
	o.config.EventBus.Publish(
		IntentStatusEventType,
		event.NewEvent(IntentStatusEventType, IntentStatusEvent{
			IntentID:   intentID,
			ActionType: actionType,
			Status:     status,
			TxID:       txID,
		}),
	)
}

func spanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:idHexLength]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
