package platform

import (
	"context"
	"fmt"

	"github.com/ebi-gdp/vattid/pkg/jobstate"
	"github.com/ebi-gdp/vattid/pkg/log"
	"github.com/ebi-gdp/vattid/pkg/store"
)

// Bridge implements the Notification Bridge (C5): Tick runs poll_and_update
// once per scheduler tick over every active job.
type Bridge struct {
	Client    *Client
	Namespace string
	Store     *store.Store
}

// NewBridge builds a Bridge bound to a platform client, the store it reads
// active jobs from, and the cluster namespace used to construct each job's
// search term.
func NewBridge(client *Client, namespace string, s *store.Store) *Bridge {
	return &Bridge{Client: client, Namespace: namespace, Store: s}
}

// Tick polls the platform for every active job and fires whatever trigger
// its remote status implies. The bridge never publishes notifications
// itself; it only invokes triggers whose after-hooks enqueue them.
func (b *Bridge) Tick(ctx context.Context) {
	ids, err := b.Store.ActiveJobIDs(ctx)
	if err != nil {
		log.WithNamespace(b.Namespace).Error().Err(err).Msg("poll_and_update: list active jobs failed")
		return
	}

	for _, id := range ids {
		if err := b.tickOne(ctx, id); err != nil {
			log.WithJobID(id).Warn().Err(err).Msg("poll_and_update: tick failed")
		}
	}
}

func (b *Bridge) tickOne(ctx context.Context, id string) error {
	searchTerm := fmt.Sprintf("%s-%s", b.Namespace, id)

	remote, ok, err := b.Client.Poll(ctx, searchTerm)
	if err != nil {
		return fmt.Errorf("platform: poll %s: %w", id, err)
	}
	if !ok {
		return nil
	}

	target, ok := jobstate.TargetState(remote.Status)
	if !ok {
		log.WithRunName(searchTerm).Warn().Str("job_id", id).Str("status", string(remote.Status)).Msg("unrecognised remote status")
		return nil
	}

	j, err := b.Store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("platform: load %s: %w", id, err)
	}
	if target == j.State {
		return nil
	}

	trigger, ok := jobstate.TriggerFor(target)
	if !ok {
		return nil
	}

	if target == jobstate.Failed {
		exit := 0
		if remote.ExitStatus != nil {
			exit = *remote.ExitStatus
		}
		j.TraceExit = &exit
		j.TraceName = remote.FirstLine()
	}

	if err := j.Fire(ctx, trigger, nil); err != nil {
		return fmt.Errorf("platform: fire %s on %s: %w", trigger, id, err)
	}
	return b.Store.Update(ctx, j)
}
