package telethon

import (
	"testing"

	"github.com/gotd/td/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Run("nil api", func(t *testing.T) {
		_, err := New(nil)
		assert.Error(t, err)
	})
	t.Run("defaults", func(t *testing.T) {
		c, err := New(&fakeInvoker{})
		require.NoError(t, err)
		assert.Equal(t, DefLimits, c.limits)
		assert.Equal(t, clock.System, c.clock)
		assert.NotNil(t, c.log)
		assert.NotNil(t, c.lim)
	})
	t.Run("options", func(t *testing.T) {
		log := zap.NewNop()
		clk := newTestClock()
		c, err := New(&fakeInvoker{},
			WithLogger(log),
			WithClock(clk),
			WithLimits(Limits{RequestsPerMinute: 10, Burst: 1, DialogsPerPage: 50}))
		require.NoError(t, err)
		assert.Same(t, log, c.log)
		assert.Equal(t, clk, c.clock)
		assert.Equal(t, 50, c.limits.DialogsPerPage)
	})
	t.Run("nil option values keep defaults", func(t *testing.T) {
		c, err := New(&fakeInvoker{}, WithLogger(nil), WithClock(nil))
		require.NoError(t, err)
		assert.NotNil(t, c.log)
		assert.Equal(t, clock.System, c.clock)
	})
	t.Run("invalid limits", func(t *testing.T) {
		_, err := New(&fakeInvoker{}, WithLimits(Limits{Burst: 1, DialogsPerPage: 200}))
		assert.Error(t, err)
	})
}

func TestLimits_Validate(t *testing.T) {
	tests := []struct {
		name    string
		limits  Limits
		wantErr bool
	}{
		{"defaults", DefLimits, false},
		{"pacing disabled", Limits{RequestsPerMinute: 0, Burst: 1, DialogsPerPage: 100}, false},
		{"negative rate", Limits{RequestsPerMinute: -1, Burst: 1, DialogsPerPage: 100}, true},
		{"zero burst", Limits{RequestsPerMinute: 60, Burst: 0, DialogsPerPage: 100}, true},
		{"zero page", Limits{RequestsPerMinute: 60, Burst: 1, DialogsPerPage: 0}, true},
		{"page above server cap", Limits{RequestsPerMinute: 60, Burst: 1, DialogsPerPage: 101}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limits.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
