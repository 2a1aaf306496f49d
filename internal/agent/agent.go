// Package agent runs the per-request pipeline: load prior turns, invoke the
// model, persist the outcome. One Process call is one pass; the agent keeps
// no state between requests and is safe to share across concurrent ones.
package agent

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/seongmin-ku/bedrockchat/internal/conversation"
	"github.com/seongmin-ku/bedrockchat/internal/logger"
)

// FSM states
type FSMState stateless.State

var (
	StateLoadingHistory FSMState = "LoadingHistory"
	StateInvokingModel  FSMState = "InvokingModel"
	StateSavingHistory  FSMState = "SavingHistory"
	StateDone           FSMState = "Done"  // Terminal: successful completion
	StateError          FSMState = "Error" // Terminal: error state
)

// FSM triggers
type FSMTrigger stateless.Trigger

var (
	TriggerProcessInput   FSMTrigger = "ProcessInput"
	TriggerHistoryLoaded  FSMTrigger = "HistoryLoaded"
	TriggerModelResponded FSMTrigger = "ModelResponded"
	TriggerHistorySaved   FSMTrigger = "HistorySaved"
	TriggerErrorOccurred  FSMTrigger = "ErrorOccurred"
)

// ModelInvoker is what the agent expects from the inference layer.
type ModelInvoker interface {
	Invoke(ctx context.Context, turns []conversation.Turn, modelID string, maxTokens int, temperature float64) (string, error)
}

// History is what the agent expects from the history gateway. Both
// operations are best-effort and never return an error.
type History interface {
	Load(ctx context.Context, sessionID string) []conversation.Turn
	Save(ctx context.Context, sessionID string, turns []conversation.Turn)
}

// Params is the validated representation of one chat request. An empty
// SessionID disables persistence for the request.
type Params struct {
	Message     string
	SessionID   string
	ModelID     string
	MaxTokens   int
	Temperature float64
}

// Result is the outcome of a successful pass. Elapsed is the model call
// latency in seconds, rounded to two decimals; it excludes history I/O.
type Result struct {
	Reply   string
	Elapsed float64
}

// Agent composes the invoker and the history gateway.
type Agent struct {
	invoker ModelInvoker
	history History
}

// New creates a new agent.
func New(invoker ModelInvoker, history History) *Agent {
	return &Agent{invoker: invoker, history: history}
}

// Process runs one request through a finite state machine:
// LoadingHistory -> InvokingModel -> SavingHistory -> Done, with any step
// able to divert to Error. History steps are taken even in session-less
// mode; they just do nothing.
func (a *Agent) Process(ctx context.Context, p Params) (Result, error) {
	type fsmContext struct {
		turns     []conversation.Turn
		reply     string
		elapsed   time.Duration
		lastError error
	}
	fsmCtx := &fsmContext{}

	fsm := stateless.NewStateMachine(StateLoadingHistory)

	// State: LoadingHistory
	// Action: load prior turns (best-effort) and append the inbound user turn.
	fsm.Configure(StateLoadingHistory).
		PermitReentry(TriggerProcessInput). // ensures OnEntry runs on the initial Fire
		OnEntry(func(ctx context.Context, _ ...any) error {
			if p.SessionID != "" {
				fsmCtx.turns = a.history.Load(ctx, p.SessionID)
			}
			fsmCtx.turns = append(fsmCtx.turns, conversation.Turn{
				Role:    conversation.RoleUser,
				Content: p.Message,
			})
			return fsm.FireCtx(ctx, TriggerHistoryLoaded)
		}).
		Permit(TriggerHistoryLoaded, StateInvokingModel).
		Permit(TriggerErrorOccurred, StateError)

	// State: InvokingModel
	// Action: call the backend; latency is measured strictly around this call.
	fsm.Configure(StateInvokingModel).
		OnEntry(func(ctx context.Context, _ ...any) error {
			start := time.Now()
			reply, err := a.invoker.Invoke(ctx, fsmCtx.turns, p.ModelID, p.MaxTokens, p.Temperature)
			fsmCtx.elapsed = time.Since(start)
			if err != nil {
				fsmCtx.lastError = err
				return fsm.FireCtx(ctx, TriggerErrorOccurred)
			}
			fsmCtx.reply = reply
			return fsm.FireCtx(ctx, TriggerModelResponded)
		}).
		Permit(TriggerModelResponded, StateSavingHistory).
		Permit(TriggerErrorOccurred, StateError)

	// State: SavingHistory
	// Action: append the assistant turn and persist. Save failures never
	// surface; the gateway swallows them.
	fsm.Configure(StateSavingHistory).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if p.SessionID != "" {
				turns := append(fsmCtx.turns, conversation.Turn{
					Role:    conversation.RoleAssistant,
					Content: fsmCtx.reply,
				})
				a.history.Save(ctx, p.SessionID, turns)
			}
			return fsm.FireCtx(ctx, TriggerHistorySaved)
		}).
		Permit(TriggerHistorySaved, StateDone)

	fsm.Configure(StateDone).
		OnEntry(func(ctx context.Context, _ ...any) error {
			logger.L.Debug("pipeline done", "session_id", p.SessionID, "elapsed", fsmCtx.elapsed)
			return nil
		})

	fsm.Configure(StateError).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if fsmCtx.lastError == nil {
				fsmCtx.lastError = errors.New("pipeline reached error state without a specific error")
			}
			return nil
		})

	if err := fsm.FireCtx(ctx, TriggerProcessInput); err != nil {
		logger.L.Warn("FSM fire error", "error", err)
		if fsmCtx.lastError == nil {
			fsmCtx.lastError = err
		}
	}

	if fsmCtx.lastError != nil {
		return Result{}, fsmCtx.lastError
	}
	return Result{
		Reply:   fsmCtx.reply,
		Elapsed: math.Round(fsmCtx.elapsed.Seconds()*100) / 100,
	}, nil
}
