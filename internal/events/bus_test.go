package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-b2b/internal/events"
)

type stubStore struct {
	topic   string
	payload []byte
}

func (s *stubStore) InsertDomainEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	s.topic = topic
	s.payload = payload
	return events.Event{ID: uuid.New(), Topic: topic, AggregateID: aggregateID, Payload: payload, OccurredAt: time.Now()}, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	var logs bytes.Buffer
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier, events.LogNotifier{Logger: zerolog.New(&logs)}},
	}

	aggregate := uuid.New()
	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, aggregate, map[string]any{"orderNumber": "ORD-20250101-ABCDEF12"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.topic)
	require.JSONEq(t, `{"orderNumber":"ORD-20250101-ABCDEF12"}`, string(store.payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)
	require.Contains(t, logs.String(), `"topic":"order.created"`)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "ORD-20250101-ABCDEF12", decoded["orderNumber"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), " ", uuid.New(), nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderCancelled, uuid.Nil, nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderCancelled, uuid.New(), "not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(context.Background(), events.TopicOrderCancelled, uuid.New(), nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	store := &stubStore{}
	boom := errors.New("boom")
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{&captureNotifier{err: boom}}}
	ev, err := bus.Emit(context.Background(), events.TopicOrderStatusChanged, uuid.New(), []byte(`{"to":"shipped"}`))
	require.ErrorIs(t, err, boom)
	require.Equal(t, events.TopicOrderStatusChanged, ev.Topic)
	require.Equal(t, events.TopicOrderStatusChanged, store.topic)
}
