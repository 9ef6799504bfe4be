package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeChannel struct {
	mu      sync.Mutex
	sent    []int64
	failFor map[int64]int // user id -> remaining failures
	sendErr error
}

func (f *fakeChannel) Send(_ context.Context, userID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[userID] > 0 {
		f.failFor[userID]--
		return errors.New("send failed")
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, userID)
	return nil
}

func (f *fakeChannel) sentTo() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.sent...)
}

func fastConfig() DispatcherConfig {
	return DispatcherConfig{
		MessagesPerSecond: 1000,
		Burst:             1000,
		RetryDelays:       []time.Duration{time.Millisecond, time.Millisecond},
		Workers:           4,
	}
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	ch := &fakeChannel{failFor: map[int64]int{7: 2}}
	d := NewDispatcher(ch, fastConfig(), zerolog.Nop())

	err := d.Dispatch(context.Background(), Event{Kind: KindBooked, UserID: 7})
	assert.NoError(t, err)
	assert.Equal(t, []int64{7}, ch.sentTo())
}

func TestDispatchExhaustedInvokesFailureHook(t *testing.T) {
	ch := &fakeChannel{failFor: map[int64]int{7: 10}}
	d := NewDispatcher(ch, fastConfig(), zerolog.Nop())

	failed := 0
	d.OnFailure(func() { failed++ })

	err := d.Dispatch(context.Background(), Event{Kind: KindBooked, UserID: 7})
	assert.Error(t, err)
	assert.Equal(t, 1, failed)
	assert.Empty(t, ch.sentTo())
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	ch := &fakeChannel{failFor: map[int64]int{11: 10}}
	d := NewDispatcher(ch, fastConfig(), zerolog.Nop())

	events := []Event{
		{Kind: KindScheduleChanged, UserID: 10},
		{Kind: KindScheduleChanged, UserID: 11},
		{Kind: KindScheduleChanged, UserID: 12},
	}
	d.Broadcast(context.Background(), events)

	sent := ch.sentTo()
	assert.Len(t, sent, 2)
	assert.NotContains(t, sent, int64(11))
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		ev       Event
		contains []string
	}{
		{
			name: "Booked",
			ev: Event{
				Kind: KindBooked, UserName: "Ana",
				Date: "2024-06-10", Time: "10:00", Services: []string{"Corte", "Tinte"},
			},
			contains: []string{"Ana", "2024-06-10", "10:00", "Corte, Tinte", "reservada"},
		},
		{
			name: "CancelledWithReason",
			ev: Event{
				Kind: KindCancelled, UserName: "Ana",
				Date: "2024-06-10", Time: "10:00", Reason: "imprevisto",
			},
			contains: []string{"cancelada", "Motivo: imprevisto"},
		},
		{
			name: "ConflictRescheduledNamesBothSlots",
			ev: Event{
				Kind: KindConflictRescheduled, UserName: "Ana",
				Date: "2024-06-10", Time: "11:00",
				OldDate: "2024-06-10", OldTime: "10:00",
			},
			contains: []string{"10:00", "11:00", "alternativa"},
		},
		{
			name: "ScheduleChangedAsksToRebook",
			ev: Event{
				Kind: KindScheduleChanged, UserName: "Ana",
				Date: "2024-06-10", Time: "10:00",
			},
			contains: []string{"cambio en nuestro horario", "reserva una nueva hora"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := Render(tt.ev)
			for _, want := range tt.contains {
				if !strings.Contains(text, want) {
					t.Errorf("rendered text missing %q:\n%s", want, text)
				}
			}
		})
	}
}
