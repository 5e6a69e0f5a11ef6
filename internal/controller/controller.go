// Package controller implements the central coordinator of §4.7: it
// wires the run store, state machine, summarizer and the two channels
// together, owns the lifecycle of the active run, and routes every
// inbound message through a single serialized execution lane (§5).
// Grounded on the teacher's internal/orchestrator/acp.Handler, which
// already shows the pattern of a single goroutine draining an inbound
// channel and fanning out to a message store plus listener callbacks —
// generalized here from "per-task buffer with listeners" to "the one
// active run's state machine plus two outbound channels".
package controller

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentbreak/coordinator/internal/channel/agent"
	"github.com/agentbreak/coordinator/internal/channel/ui"
	"github.com/agentbreak/coordinator/internal/common/config"
	coorderrors "github.com/agentbreak/coordinator/internal/common/errors"
	"github.com/agentbreak/coordinator/internal/common/logger"
	"github.com/agentbreak/coordinator/internal/events/bus"
	"github.com/agentbreak/coordinator/internal/run"
	"github.com/agentbreak/coordinator/internal/statemachine"
	"github.com/agentbreak/coordinator/internal/wire"
	"github.com/agentbreak/coordinator/pkg/model"
)

// Controller is the coordinator of §4.7.
type Controller struct {
	store   *run.Store
	sm      *statemachine.Machine
	events  bus.EventBus
	logger  *logger.Logger
	version string

	agentCh *agent.Channel
	uiCh    *ui.Channel

	lane chan func()
}

// New builds a Controller. Run must be called to start its execution
// lane before any channel is accepted.
func New(store *run.Store, events bus.EventBus, lg *logger.Logger) *Controller {
	return &Controller{
		store:   store,
		sm:      statemachine.New(),
		events:  events,
		logger:  lg,
		version: config.ServerVersion,
		lane:    make(chan func(), 4096),
	}
}

// Run drains the execution lane until ctx is canceled. All state
// mutation in the controller happens here, on this one goroutine,
// guaranteeing the atomicity of §5.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.lane:
			job()
		}
	}
}

// submit enqueues fn onto the execution lane, a FIFO buffered channel of
// 4096 entries. The queue is bounded: while the lane holds 4096 pending
// jobs, the send blocks the caller's goroutine (a channel read-pump)
// until the lane drains.
func (c *Controller) submit(fn func()) {
	c.lane <- fn
}

// AttachAgent registers ch as the current agent channel. Called by the
// HTTP handler right after a successful agent.Hub.Accept, before
// ch.Run is started.
func (c *Controller) AttachAgent(ch *agent.Channel) { c.submit(func() { c.agentCh = ch }) }

// AttachUI registers ch as the current UI channel.
func (c *Controller) AttachUI(ch *ui.Channel) { c.submit(func() { c.uiCh = ch }) }

// ---- agent.Handler ----

func (c *Controller) OnEvent(ctx context.Context, data *wire.AgentEventData) {
	c.submit(func() { c.handleEvent(data) })
}

func (c *Controller) OnBreakpoint(ctx context.Context, data *wire.AgentBreakpointData) {
	c.submit(func() { c.handleBreakpoint(ctx, data) })
}

func (c *Controller) OnCommit(ctx context.Context, data *wire.AgentCommitData) {
	c.submit(func() { c.handleCommit(data) })
}

func (c *Controller) OnProtocolError(ctx context.Context, err error) {
	c.submit(func() {
		c.logger.Warn("agent protocol error, closing agent session", zap.Error(err))
		if c.agentCh != nil {
			c.agentCh.Close(err.Error())
		}
	})
}

func (c *Controller) OnDisconnected(ctx context.Context) {
	c.submit(func() { c.handleAgentDisconnect() })
}

// ---- ui.Handler ----

func (c *Controller) OnConnected(ctx context.Context) {
	c.submit(func() { c.handleUIConnected() })
}

func (c *Controller) OnUIEvent(ctx context.Context, env *wire.UIEnvelope) {
	c.submit(func() { c.handleUIEvent(env) })
}

// handleEvent implements the "Incoming Event" handler of §4.7.
func (c *Controller) handleEvent(data *wire.AgentEventData) {
	sentAt, _ := time.Parse(time.RFC3339Nano, data.SentAt)
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	evt := &model.Event{
		EventID:   data.EventID,
		EventType: data.EventType,
		Payload:   data.Payload,
		SentAt:    sentAt,
	}

	switch data.EventType {
	case model.EventProgramStarted:
		if c.store.Active() != nil {
			// Two PROGRAM_STARTED events before the previous run closed
			// is AGENT_PROTOCOL (§9 open-question resolution).
			c.closeAgentSession(coorderrors.New(coorderrors.AgentProtocol, "PROGRAM_STARTED received while a run is already active"))
			return
		}
		programName := data.Payload.Text
		newRun := c.store.OpenRun(programName)
		_ = c.store.AttachEvent(evt)
		c.sm.ProgramStarted()
		c.notifyNewRun(newRun)
		c.notifyRunState(newRun)
		c.publishLifecycle(bus.TypeRunOpened, newRun)
		return
	case model.EventDebugMessage:
		if err := c.store.AttachEvent(evt); err != nil {
			c.closeAgentSession(err)
			return
		}
		c.notifyDebugMessage(evt)
		return
	default:
		if err := c.store.AttachEvent(evt); err != nil {
			c.closeAgentSession(coorderrors.New(coorderrors.AgentProtocol, "event received with no active run"))
			return
		}
		activeRun := c.store.Active()
		c.sm.SetAgentState(statemachine.DeriveAgentState(c.sm.AgentState(), evt.EventType, false))
		c.notifyRunState(activeRun)
	}
}

// handleBreakpoint implements the "Incoming Breakpoint" handler of §4.7.
func (c *Controller) handleBreakpoint(ctx context.Context, data *wire.AgentBreakpointData) {
	activeRun := c.store.Active()
	if activeRun == nil {
		c.closeAgentSession(coorderrors.New(coorderrors.AgentProtocol, "breakpoint received with no active run"))
		return
	}

	sentAt, _ := time.Parse(time.RFC3339Nano, data.SentAt)
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	bp := &model.Breakpoint{
		UUID: data.UUID, EventID: data.EventID, Phase: data.Phase,
		OriginalData: data.OriginalData, Summary: data.Summary, Timestamp: sentAt,
	}
	if data.ModifiedData != nil {
		bp.ModifiedData = *data.ModifiedData
	} else {
		bp.ModifiedData = data.OriginalData
	}

	if err := c.store.AttachBreakpoint(ctx, bp); err != nil {
		c.closeAgentSession(err)
		return
	}
	c.notifyNewMessage(activeRun, bp)

	switch c.sm.ExecutionState() {
	case model.StateStep:
		c.sm.BreakpointArrivedWhileStep(activeRun.UUID, bp)
		c.notifyRunState(activeRun)
	case model.StateContinue:
		evt := activeRun.EventByID(bp.EventID)
		insideBreakpoint := data.Phase == model.PhaseBegin
		eventType := model.EventType("")
		if evt != nil {
			eventType = evt.EventType
		}
		c.sm.BreakpointArrivedWhileContinue(eventType, insideBreakpoint)
		if c.agentCh != nil {
			_ = c.agentCh.SendBreakpoint(bp)
		}
		c.notifyRunState(activeRun)
	default:
		c.closeAgentSession(coorderrors.New(coorderrors.AgentProtocol, fmt.Sprintf("breakpoint received while %s", c.sm.ExecutionState())))
	}
}

// handleCommit implements the "Incoming Commit" handler of §4.7.
func (c *Controller) handleCommit(data *wire.AgentCommitData) {
	activeRun := c.store.Active()
	if activeRun == nil {
		c.closeAgentSession(coorderrors.New(coorderrors.AgentProtocol, "commit received with no active run"))
		return
	}
	date, _ := time.Parse(time.RFC3339Nano, data.Date)
	commit := &model.Commit{ID: data.ID, Date: date, Title: data.Title}
	for _, ch := range data.Changes {
		commit.Changes = append(commit.Changes, model.Change{
			Path: ch.Path, Kind: ch.Kind, CurrentContent: ch.Content, PreviousContent: ch.PreviousContent,
		})
	}
	if err := c.store.AttachCommit(commit); err != nil {
		c.closeAgentSession(err)
		return
	}
	if c.uiCh != nil {
		_ = c.uiCh.SendEvent(wire.UIEventNewCommit, wire.NewCommitContent{Run: activeRun.UUID, Commit: commit})
	}
}

// handleAgentDisconnect implements the "Agent disconnect" handler of
// §4.7.
func (c *Controller) handleAgentDisconnect() {
	c.agentCh = nil
	closedRun, terminalBP := c.store.CloseActive("agent disconnected")
	if closedRun == nil {
		return
	}
	c.sm.ProgramFinished()
	if c.uiCh != nil {
		_ = c.uiCh.SendEvent(wire.UIEventNewMessage, wire.NewMessageContent{Run: closedRun.UUID, Message: terminalBP})
	}
	c.notifyRunState(closedRun)
	c.publishLifecycle(bus.TypeRunClosed, closedRun)
}

// closeAgentSession closes the agent channel for a fatal error per §7
// and, if a run was active, leaves it in the state it was in (the
// testable properties require the state machine be left untouched by a
// rejected breakpoint; only the socket is closed).
func (c *Controller) closeAgentSession(err error) {
	c.logger.Warn("closing agent session", zap.Error(err))
	if c.agentCh != nil {
		c.agentCh.Close(err.Error())
	}
	if c.uiCh != nil {
		c.uiCh.SendError(err.Error())
	}
}

// handleUIConnected implements §4.6's INIT_APP_STATE response.
func (c *Controller) handleUIConnected() {
	if c.uiCh == nil {
		return
	}
	runs := make([]interface{}, 0)
	for _, r := range c.store.History() {
		runs = append(runs, r)
	}
	content := wire.InitAppStateContent{Runs: runs}
	if active := c.store.Active(); active != nil {
		runs = append([]interface{}{active}, runs...)
		content.Runs = runs
		content.ActiveRun = &active.UUID
	}
	if p := c.sm.Pending(); p != nil {
		content.HaltedAt = &p.Breakpoint.UUID
	}
	_ = c.uiCh.SendEvent(wire.UIEventInitAppState, content)
}

// handleUIEvent dispatches a decoded UI envelope to the matching §4.7 UI
// handler.
func (c *Controller) handleUIEvent(env *wire.UIEnvelope) {
	switch env.Event {
	case wire.UIEventStep:
		c.uiStep()
	case wire.UIEventContinue:
		c.uiContinue()
	case wire.UIEventHalt:
		c.uiHalt()
	case wire.UIEventRenameRun:
		c.uiRenameRun(env.Content)
	case wire.UIEventDownloadRunRequest:
		c.uiDownloadRun(env.Content)
	case wire.UIEventImportRun:
		c.uiImportRun(env.Content)
	case wire.UIEventDeleteRun:
		c.uiDeleteRun(env.Content)
	case wire.UIEventUpdateMsgContent:
		c.uiUpdateMsgContent(env.Content)
	}
}

func (c *Controller) uiStep() {
	activeRun := c.store.Active()
	pending, err := c.sm.UIStep()
	if err != nil {
		c.reportUIError(err)
		return
	}
	if pending != nil {
		eventType := model.EventType("")
		if activeRun != nil {
			if evt := activeRun.EventByID(pending.Breakpoint.EventID); evt != nil {
				eventType = evt.EventType
			}
		}
		insideBreakpoint := pending.Breakpoint.Phase == model.PhaseBegin
		c.sm.SetAgentState(statemachine.DeriveAgentState(c.sm.AgentState(), eventType, insideBreakpoint))
		if c.agentCh != nil {
			_ = c.agentCh.SendBreakpoint(pending.Breakpoint)
		}
	}
	if activeRun != nil {
		c.notifyRunState(activeRun)
	}
}

func (c *Controller) uiContinue() {
	pending := c.sm.Pending()
	if err := c.sm.UIContinue(); err != nil {
		if c.uiCh != nil {
			c.uiCh.SendError("continue is a no-op in the current state")
		}
		return
	}
	if pending != nil && c.agentCh != nil {
		_ = c.agentCh.SendBreakpoint(pending.Breakpoint)
	}
	if activeRun := c.store.Active(); activeRun != nil {
		c.notifyRunState(activeRun)
	}
}

func (c *Controller) uiHalt() {
	c.sm.UIHalt()
	if activeRun := c.store.Active(); activeRun != nil {
		c.notifyRunState(activeRun)
	}
}

func (c *Controller) uiRenameRun(content json.RawMessage) {
	var req wire.RenameRunContent
	if err := json.Unmarshal(content, &req); err != nil {
		c.reportUIError(coorderrors.Wrap(coorderrors.Parse, "malformed rename_run content", err))
		return
	}
	if err := c.store.Rename(req.Run, req.Name); err != nil {
		c.reportUIError(err)
	}
}

func (c *Controller) uiDownloadRun(content json.RawMessage) {
	var req wire.RunRefContent
	if err := json.Unmarshal(content, &req); err != nil {
		c.reportUIError(coorderrors.Wrap(coorderrors.Parse, "malformed download_run_request content", err))
		return
	}
	data, err := c.store.Export(req.Run)
	if err != nil {
		c.reportUIError(err)
		return
	}
	r, _ := c.store.ByUUID(req.Run)
	name := req.Run
	if r != nil {
		name = r.Name
	}
	if c.uiCh != nil {
		_ = c.uiCh.SendEvent(wire.UIEventRunExport, wire.RunExportContent{
			Name: name, Data: base64.StdEncoding.EncodeToString(data),
		})
	}
}

func (c *Controller) uiImportRun(content json.RawMessage) {
	var req wire.ImportRunContent
	if err := json.Unmarshal(content, &req); err != nil {
		c.reportUIError(coorderrors.Wrap(coorderrors.Parse, "malformed import_run content", err))
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		c.reportUIError(coorderrors.Wrap(coorderrors.Parse, "import_run data is not valid base64", err))
		return
	}
	r, err := c.store.Import(data)
	if err != nil {
		// VERSION_MISMATCH must be surfaced, not silently dropped (§9).
		c.reportUIError(err)
		return
	}
	c.notifyNewRun(r)
	c.publishLifecycle(bus.TypeRunImported, r)
}

func (c *Controller) uiDeleteRun(content json.RawMessage) {
	var req wire.RunRefContent
	if err := json.Unmarshal(content, &req); err != nil {
		c.reportUIError(coorderrors.Wrap(coorderrors.Parse, "malformed delete_run content", err))
		return
	}
	if err := c.store.Delete(req.Run); err != nil {
		c.reportUIError(err)
		return
	}
	c.publishLifecycle(bus.TypeRunDeleted, &model.Run{UUID: req.Run})
}

func (c *Controller) uiUpdateMsgContent(content json.RawMessage) {
	var req wire.UpdateMsgContentContent
	if err := json.Unmarshal(content, &req); err != nil {
		c.reportUIError(coorderrors.Wrap(coorderrors.Parse, "malformed update_msg_content content", err))
		return
	}
	if !c.sm.CanAcceptModifiedData(req.Message) {
		c.reportUIError(coorderrors.New(coorderrors.UIProtocol, "update_msg_content targets a message that is not the pending breakpoint"))
		return
	}
	pending := c.sm.Pending()
	var payload model.Payload
	if err := json.Unmarshal(req.Content, &payload); err != nil {
		// Fall back to treating the raw content as opaque text if it
		// isn't already a tagged Payload; the UI is free to send either.
		payload = model.TextPayload(string(req.Content))
	}
	pending.Breakpoint.ModifiedData = payload
}

func (c *Controller) reportUIError(err error) {
	if c.uiCh != nil {
		c.uiCh.SendError(err.Error())
	}
}

func (c *Controller) notifyNewRun(r *model.Run) {
	if c.uiCh != nil {
		_ = c.uiCh.SendEvent(wire.UIEventNewRun, wire.NewRunContent{Run: r})
	}
}

func (c *Controller) notifyDebugMessage(evt *model.Event) {
	if c.uiCh == nil {
		return
	}
	activeRun := c.store.Active()
	if activeRun == nil {
		return
	}
	_ = c.uiCh.SendEvent(wire.UIEventNewMessage, wire.NewMessageContent{Run: activeRun.UUID, Message: evt})
}

func (c *Controller) notifyNewMessage(r *model.Run, bp *model.Breakpoint) {
	if c.uiCh != nil {
		_ = c.uiCh.SendEvent(wire.UIEventNewMessage, wire.NewMessageContent{Run: r.UUID, Message: bp})
	}
}

func (c *Controller) notifyRunState(r *model.Run) {
	if c.uiCh == nil {
		return
	}
	content := wire.UpdateRunStateContent{
		Run: r.UUID, State: string(c.sm.ExecutionState()), AgentState: string(c.sm.AgentState()),
	}
	if p := c.sm.Pending(); p != nil {
		content.HaltedAt = &p.Breakpoint.UUID
	}
	_ = c.uiCh.SendEvent(wire.UIEventUpdateRunState, content)
}

func (c *Controller) publishLifecycle(eventType string, r *model.Run) {
	if c.events == nil {
		return
	}
	evt := bus.NewEvent(eventType, "coordinator", map[string]interface{}{
		"run_uuid": r.UUID, "run_name": r.Name,
	})
	_ = c.events.Publish(context.Background(), bus.SubjectRuns, evt)
}
