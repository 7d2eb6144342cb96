package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-console/internal/presence"
)

type stubWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func TestKafkaStorageKeysByUser(t *testing.T) {
	w := &stubWriter{}
	s := NewKafkaStorage(w)

	require.NoError(t, s.WriteBatch(context.Background(), []presence.JustificationRecord{
		{ID: "j-1", UserIdentity: "alice", Reason: "lunch"},
		{ID: "j-2", UserIdentity: "bob", Reason: "doctor"},
	}))

	require.Len(t, w.msgs, 2)
	require.Equal(t, "alice", string(w.msgs[0].Key))
	require.Equal(t, "presence.justification", string(w.msgs[0].Headers[0].Value))

	var decoded presence.JustificationRecord
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &decoded))
	require.Equal(t, "doctor", decoded.Reason)
}

func TestKafkaStorageWrapsWriterError(t *testing.T) {
	boom := errors.New("leader not available")
	s := NewKafkaStorage(&stubWriter{err: boom})

	err := s.WriteBatch(context.Background(), []presence.JustificationRecord{{ID: "x"}})
	require.ErrorIs(t, err, boom)
	require.NoError(t, s.WriteBatch(context.Background(), nil))
}
