package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
)

const consumeBackoff = 2 * time.Second

func saramaConfig(c InvalidationConfig) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "projd-invalidator"
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.RebalanceTimeout
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	if c.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	cfg.Consumer.Return.Errors = true
	return cfg
}

// setAssignment records the claimed partitions; nil clears the assignment
// when a session ends.
func (r *Runner) setAssignment(claims map[string][]int32) {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assign = map[int32]struct{}{}
	for _, parts := range claims {
		for _, p := range parts {
			r.assign[p] = struct{}{}
		}
	}
	r.assigned.Store(claims != nil)
	r.ms.partitions.Set(float64(len(r.assign)))
}

// consume rejoins the group after every rebalance or error until ctx ends.
func (r *Runner) consume(ctx context.Context, group sarama.ConsumerGroup, h sarama.ConsumerGroupHandler) {
	defer r.wg.Done()
	defer func() {
		if err := group.Close(); err != nil {
			r.log.Error("kafka consumer group close", "err", err)
		}
	}()
	for ctx.Err() == nil {
		err := group.Consume(ctx, []string{r.cfg.Topic}, h)
		if err == nil {
			continue
		}
		r.log.Error("kafka consume error", "err", err)
		select {
		case <-time.After(consumeBackoff):
		case <-ctx.Done():
		}
	}
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

// ConsumeClaim marks a message only after it was applied; a failed apply
// ends the claim so the message is redelivered.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
