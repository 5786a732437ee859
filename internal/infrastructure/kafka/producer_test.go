package kafka_infra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogProducerWritesEventToLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogProducer(zap.New(core))

	err := p.Produce(context.Background(), "GKF_1_ABC", "donation_events", []byte(`{"event":"donation_completed"}`))
	assert.NoError(t, err)
	assert.NoError(t, p.Close())

	entries := logs.FilterMessage("Analytics event").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "donation_events", fields["topic"])
		assert.Equal(t, "GKF_1_ABC", fields["key"])
	}
}

func TestEnsureTopicsNoBrokers(t *testing.T) {
	assert.NoError(t, EnsureTopics(context.Background(), nil, []string{"t"}, zap.NewNop()))
}
