package statemachine

import (
	"context"
	"errors"
	"testing"

	"github.com/ebi-gdp/vattid/pkg/jobstate"
	"github.com/ebi-gdp/vattid/pkg/messages"
	"github.com/ebi-gdp/vattid/pkg/notify"
	"github.com/ebi-gdp/vattid/pkg/resources"
)

func testRequest() *messages.JobRequest {
	return &messages.JobRequest{
		PipelineParam: messages.PGSJobParams{
			ID: "INTPTEST01",
			TargetGenomes: []messages.TargetGenome{
				{Sampleset: "test", Geno: "hi.pgen", Pheno: "hi.psam", Variants: "hi.pvar", Format: messages.FormatPfile},
			},
			NxfParamsFile: messages.PGSParams{TargetBuild: messages.BuildGRCh37, Format: messages.SamplesheetJSON},
		},
		SecretKeyDetails: messages.SecretKeyDetails{SecretID: "81d5c400-21b4-4e88-8208-8d64c9920283", SecretIDVersion: "1"},
	}
}

func TestHappyPath(t *testing.T) {
	var notifications []notify.Message
	j := New("INTPTEST01", resources.NewDummyHandler(), func(m notify.Message) { notifications = append(notifications, m) })

	if err := j.Fire(context.Background(), jobstate.TriggerCreate, testRequest()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if j.State != jobstate.Created {
		t.Fatalf("state after create = %s, want Created", j.State)
	}

	if err := j.Fire(context.Background(), jobstate.TriggerDeploy, nil); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if j.State != jobstate.Deployed {
		t.Fatalf("state after deploy = %s, want Deployed", j.State)
	}

	if err := j.Fire(context.Background(), jobstate.TriggerSucceed, nil); err != nil {
		t.Fatalf("succeed: %v", err)
	}
	if j.State != jobstate.Succeeded {
		t.Fatalf("state after succeed = %s, want Succeeded", j.State)
	}

	if len(notifications) != 2 {
		t.Fatalf("len(notifications) = %d, want 2", len(notifications))
	}
	if notifications[0].Event != jobstate.Deployed || notifications[1].Event != jobstate.Succeeded {
		t.Fatalf("notifications = %+v, want Deployed then Succeeded", notifications)
	}
}

func TestIllegalTransitionLeavesStateUnchanged(t *testing.T) {
	j := New("INTPTEST02", resources.NewDummyHandler(), nil)
	j.State = jobstate.Succeeded

	err := j.Fire(context.Background(), jobstate.TriggerError, nil)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Fire() error = %v, want ErrIllegalTransition", err)
	}
	if j.State != jobstate.Succeeded {
		t.Fatalf("state = %s, want unchanged Succeeded", j.State)
	}
}

func TestErrorFromAnyActiveState(t *testing.T) {
	for _, state := range []jobstate.State{jobstate.Requested, jobstate.Created, jobstate.Deployed} {
		var notifications []notify.Message
		j := New("INTPTEST03", resources.NewDummyHandler(), func(m notify.Message) { notifications = append(notifications, m) })
		j.State = state

		if err := j.Fire(context.Background(), jobstate.TriggerError, nil); err != nil {
			t.Fatalf("error from %s: %v", state, err)
		}
		if j.State != jobstate.Failed {
			t.Fatalf("state from %s = %s, want Failed", state, j.State)
		}
		if len(notifications) != 1 || notifications[0].Event != jobstate.Failed {
			t.Fatalf("notifications = %+v, want one Failed", notifications)
		}
	}
}

type failingHandler struct {
	resources.DummyHandler
	createErr error
}

func (h *failingHandler) CreateResources(context.Context, messages.JobRequest) error {
	return h.createErr
}

func TestFailingProvisionRecoversToFailed(t *testing.T) {
	var notifications []notify.Message
	h := &failingHandler{createErr: resources.ErrBucketExists}
	j := New("INTPTEST04", h, func(m notify.Message) { notifications = append(notifications, m) })

	err := j.Fire(context.Background(), jobstate.TriggerCreate, testRequest())
	if err != nil {
		t.Fatalf("Fire() error = %v, want nil (recovered via exception policy)", err)
	}
	if j.State != jobstate.Failed {
		t.Fatalf("state = %s, want Failed", j.State)
	}
	if len(notifications) != 1 || notifications[0].Event != jobstate.Failed {
		t.Fatalf("notifications = %+v, want one Failed", notifications)
	}
}

func TestNotifyOrderedBeforeDestroy(t *testing.T) {
	var order []string
	h := &orderTrackingHandler{order: &order}
	j := New("INTPTEST05", h, func(m notify.Message) { order = append(order, "notify:"+string(m.Event)) })
	j.State = jobstate.Deployed
	if err := j.Fire(context.Background(), jobstate.TriggerSucceed, nil); err != nil {
		t.Fatalf("succeed: %v", err)
	}
	if len(order) != 2 || order[0] != "notify:Succeeded" || order[1] != "destroy" {
		t.Fatalf("order = %v, want [notify:Succeeded destroy]", order)
	}
}

type orderTrackingHandler struct {
	resources.DummyHandler
	order *[]string
}

func (h *orderTrackingHandler) DestroyResources(context.Context, jobstate.State) error {
	*h.order = append(*h.order, "destroy")
	return nil
}
