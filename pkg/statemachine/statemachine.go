// Package statemachine implements the State Machine (C2): the per-job
// transition table, its prepare/after hooks, and the exception policy that
// recovers a failing hook into the Failed state.
package statemachine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ebi-gdp/vattid/pkg/jobstate"
	"github.com/ebi-gdp/vattid/pkg/messages"
	"github.com/ebi-gdp/vattid/pkg/metrics"
	"github.com/ebi-gdp/vattid/pkg/notify"
	"github.com/ebi-gdp/vattid/pkg/resources"
)

// ErrIllegalTransition is the distinguishable machine-error raised for any
// (state, trigger) pair not present in the transition table.
var ErrIllegalTransition = errors.New("illegal transition")

// Job is a single tracked unit of work and its state machine. NotifyFunc
// and Handler are runtime collaborators supplied by the caller (store,
// scheduler) rather than serialised — see pkg/store for the persisted
// subset of this struct.
type Job struct {
	ID    string
	State jobstate.State

	// TraceName/TraceExit are populated by the notification bridge from
	// the remote platform before a Failed-bound error trigger fires.
	TraceName string
	TraceExit *int

	Handler resources.Handler

	// NotifyFunc is invoked by the notify hook with the message to
	// publish; nil is only valid for dry-run/test machines that never
	// call notify.
	NotifyFunc func(notify.Message)
}

// New constructs a Job in its initial Requested state.
func New(id string, handler resources.Handler, notifyFunc func(notify.Message)) *Job {
	return &Job{ID: id, State: jobstate.Requested, Handler: handler, NotifyFunc: notifyFunc}
}

type prepareFn func(ctx context.Context, j *Job, req *messages.JobRequest) error
type afterFn func(ctx context.Context, j *Job) error

// transitionRow is one row of the transition table: {trigger, source-set,
// destination, prepare-fn, after-fn} matched by tagged-enum equality, per
// the "dynamic event dispatch" design note.
type transitionRow struct {
	Trigger jobstate.Trigger
	Sources []jobstate.State
	Dest    jobstate.State
	Prepare prepareFn
	After   []afterFn
}

func (r transitionRow) hasSource(s jobstate.State) bool {
	for _, src := range r.Sources {
		if src == s {
			return true
		}
	}
	return false
}

var transitionTable = []transitionRow{
	{
		Trigger: jobstate.TriggerCreate,
		Sources: []jobstate.State{jobstate.Requested},
		Dest:    jobstate.Created,
		Prepare: createResources,
	},
	{
		Trigger: jobstate.TriggerDeploy,
		Sources: []jobstate.State{jobstate.Created},
		Dest:    jobstate.Deployed,
		After:   []afterFn{notifyHook},
	},
	{
		Trigger: jobstate.TriggerSucceed,
		Sources: []jobstate.State{jobstate.Deployed},
		Dest:    jobstate.Succeeded,
		After:   []afterFn{notifyHook, destroyResourcesHook},
	},
	{
		Trigger: jobstate.TriggerError,
		Sources: []jobstate.State{jobstate.Requested, jobstate.Created, jobstate.Deployed},
		Dest:    jobstate.Failed,
		After:   []afterFn{notifyHook, destroyResourcesHook},
	},
}

func lookup(trigger jobstate.Trigger, source jobstate.State) (transitionRow, bool) {
	for _, row := range transitionTable {
		if row.Trigger == trigger && row.hasSource(source) {
			return row, true
		}
	}
	return transitionRow{}, false
}

// Fire drives the trigger against the job's current state. req is only
// consulted by the create trigger's prepare hook and may be nil otherwise.
func (j *Job) Fire(ctx context.Context, trigger jobstate.Trigger, req *messages.JobRequest) error {
	return j.fire(ctx, trigger, req, 0)
}

func (j *Job) fire(ctx context.Context, trigger jobstate.Trigger, req *messages.JobRequest, depth int) error {
	row, ok := lookup(trigger, j.State)
	if !ok {
		return fmt.Errorf("%w: can't trigger %s from state %s", ErrIllegalTransition, trigger, j.State)
	}

	if row.Prepare != nil {
		if err := row.Prepare(ctx, j, req); err != nil {
			return j.recover(ctx, err, depth)
		}
	}

	j.State = row.Dest
	switch j.State {
	case jobstate.Failed:
		metrics.JobsFailedTotal.Inc()
	case jobstate.Succeeded:
		metrics.JobsSucceededTotal.Inc()
	}

	for _, after := range row.After {
		if err := after(ctx, j); err != nil {
			return j.recover(ctx, err, depth)
		}
	}

	return nil
}

// recover implements the exception policy: any error other than
// ErrIllegalTransition drives the machine to Failed via the error trigger,
// once. A re-raised ErrIllegalTransition from that attempt (or a second
// failure at recursion depth 1) is fatal and surfaced to the caller.
func (j *Job) recover(ctx context.Context, cause error, depth int) error {
	if errors.Is(cause, ErrIllegalTransition) {
		return cause
	}
	if depth >= 1 {
		return cause
	}
	if err := j.fire(ctx, jobstate.TriggerError, nil, depth+1); err != nil {
		return err
	}
	return nil
}

func createResources(ctx context.Context, j *Job, req *messages.JobRequest) error {
	if req == nil {
		return fmt.Errorf("statemachine: create requires a job request")
	}
	return j.Handler.CreateResources(ctx, *req)
}

func destroyResourcesHook(ctx context.Context, j *Job) error {
	return j.Handler.DestroyResources(ctx, j.State)
}

// notifyHook enqueues the current state as a notification. Trace fields
// are only meaningful (and only serialised) when the state is Failed.
func notifyHook(_ context.Context, j *Job) error {
	if j.NotifyFunc == nil {
		return nil
	}
	var msg notify.Message
	if j.State == jobstate.Failed {
		exit := 0
		if j.TraceExit != nil {
			exit = *j.TraceExit
		}
		msg = notify.NewFailed(j.ID, j.TraceName, exit)
	} else {
		msg = notify.New(j.ID, j.State)
	}
	j.NotifyFunc(msg)
	return nil
}
