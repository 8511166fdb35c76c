package ratelimit

import (
	"testing"
	"time"
)

func TestOriginState_NextAllowed(t *testing.T) {
	last := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state OriginState
		want  time.Time
	}{
		{
			name:  "idle origin",
			state: OriginState{Delay: time.Second},
			want:  time.Time{},
		},
		{
			name:  "recent request",
			state: OriginState{Delay: 2 * time.Second, LastRequest: last},
			want:  last.Add(2 * time.Second),
		},
		{
			name:  "no delay",
			state: OriginState{LastRequest: last},
			want:  last,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.NextAllowed(); !got.Equal(tt.want) {
				t.Errorf("NextAllowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOriginState_RemainingWait(t *testing.T) {
	last := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state OriginState
		now   time.Time
		want  time.Duration
	}{
		{
			name:  "idle origin",
			state: OriginState{Delay: time.Second},
			now:   last,
			want:  0,
		},
		{
			name:  "inside window",
			state: OriginState{Delay: time.Second, LastRequest: last},
			now:   last.Add(300 * time.Millisecond),
			want:  700 * time.Millisecond,
		},
		{
			name:  "window elapsed",
			state: OriginState{Delay: time.Second, LastRequest: last},
			now:   last.Add(5 * time.Second),
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.RemainingWait(tt.now); got != tt.want {
				t.Errorf("RemainingWait() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLimitFor(t *testing.T) {
	if got := limitFor(0); got != limitFor(-time.Second) {
		t.Errorf("non-positive delays should map to the same unlimited rate, got %v", got)
	}
	if got := float64(limitFor(500 * time.Millisecond)); got != 2 {
		t.Errorf("limitFor(500ms) = %v, want 2 events/s", got)
	}
}
