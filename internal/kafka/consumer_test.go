package kafka

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clashsync/internal/config"
	"github.com/clashsync/internal/domain"
)

type recordingHandler struct {
	mu      sync.Mutex
	batches [][]domain.DiamondAward
}

func (h *recordingHandler) AwardDiamondsBatch(_ context.Context, batch domain.BatchDiamondAward) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, append([]domain.DiamondAward(nil), batch.Awards...))
	return len(batch.Awards), nil
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestDecodeAward(t *testing.T) {
	award, err := decodeAward([]byte(`{"user_id":"alice","delta":25,"source":"gift"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.DiamondAward{UserID: "alice", Delta: 25, Reason: "gift"}, award)

	_, err = decodeAward([]byte(`{"user_id":"","delta":25}`))
	assert.ErrorIs(t, err, errInvalidAward)

	_, err = decodeAward([]byte(`{"user_id":"alice","delta":0}`))
	assert.ErrorIs(t, err, errInvalidAward)

	_, err = decodeAward([]byte(`not json`))
	assert.Error(t, err)
}

func TestConsumeClaimBatchesAndMarks(t *testing.T) {
	handler := &recordingHandler{}
	consumer := &Consumer{
		config:  &config.KafkaConfig{BatchSize: 2, BatchTimeout: time.Hour},
		handler: handler,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 8)}

	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte(`{"user_id":"alice","delta":10}`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: []byte(`garbage`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 3, Value: []byte(`{"user_id":"bob","delta":5}`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 4, Value: []byte(`{"user_id":"carol","delta":7}`)}
	close(claim.messages)

	h := &consumerGroupHandler{consumer: consumer}
	require.NoError(t, h.ConsumeClaim(session, claim))

	require.Len(t, handler.batches, 2)
	assert.Equal(t, []domain.DiamondAward{{UserID: "alice", Delta: 10}, {UserID: "bob", Delta: 5}}, handler.batches[0])
	assert.Equal(t, []domain.DiamondAward{{UserID: "carol", Delta: 7}}, handler.batches[1])
	assert.Equal(t, []int64{1, 2, 3, 4}, session.marked)
}
