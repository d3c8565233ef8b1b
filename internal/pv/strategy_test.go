package pv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		mode     Mode
		wantErr  error
	}{
		{"zero selects push", 0, ModePush, nil},
		{"positive selects poll", 100 * time.Millisecond, ModePoll, nil},
		{"negative rejected", -time.Second, ModePush, ErrInvalidInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := StrategyFor(tt.interval)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mode, s.Mode())
			if tt.mode == ModePoll {
				assert.Equal(t, tt.interval, s.Interval())
			}
		})
	}
}

func TestStrategyValidate(t *testing.T) {
	assert.NoError(t, Push().validate())
	assert.NoError(t, Poll(time.Second).validate())
	assert.ErrorIs(t, Poll(0).validate(), ErrInvalidInterval)
	assert.Error(t, Strategy{mode: Mode(9)}.validate())
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "push", Push().String())
	assert.Equal(t, "poll(250ms)", Poll(250*time.Millisecond).String())
	assert.Equal(t, "Mode(7)", Mode(7).String())
	assert.Equal(t, ModePush, Strategy{}.Mode())
}
