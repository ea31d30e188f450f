package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ebi-gdp/vattid/pkg/log"
	"github.com/ebi-gdp/vattid/pkg/notify"
)

// kafkaWriter is the subset of *kafkago.Writer the producer needs, so
// tests can substitute a fake.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Producer drains a channel of outbound notifications onto the status
// topic, one message at a time, non-blockingly.
type Producer struct {
	Writer        kafkaWriter
	Notifications <-chan notify.Message

	// NotOK is set when the producer hits an unrecoverable bus error, so
	// the scheduler can restart it.
	NotOK atomic.Bool
}

// Run blocks, publishing notifications as they arrive until ctx is
// cancelled, the notifications channel is closed, or an unrecoverable
// bus error occurs. It sleeps a second whenever the queue is empty
// rather than spinning.
func (p *Producer) Run(ctx context.Context) error {
	logger := log.WithComponent("bus.producer")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-p.Notifications:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, msg); err != nil {
				p.NotOK.Store(true)
				logger.Error().Err(err).Msg("bus write failed, producer exiting")
				return err
			}
		default:
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func (p *Producer) publish(ctx context.Context, msg notify.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: marshal notification for %s: %w", msg.RunName, err)
	}
	if err := p.Writer.WriteMessages(ctx, kafkago.Message{Value: payload}); err != nil {
		return fmt.Errorf("bus: publish notification for %s: %w", msg.RunName, err)
	}
	return nil
}
