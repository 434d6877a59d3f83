package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateUnknown, StateNotDeployed, true},
		{StateUnknown, StateDeployed, true},
		{StateNotDeployed, StateDeployed, true},
		{StateDeployed, StateConfirmed, true},
		{StateUnknown, StateConfirmed, false},
		{StateDeployed, StateNotDeployed, false},
		{StateConfirmed, StateDeployed, false},
		{StateNotDeployed, StateConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, got)
			} else {
				assert.Error(t, err)
				assert.Equal(t, tt.from, got)
			}
		})
	}
}

func TestCanDeploy_OnlyWhenNotDeployed(t *testing.T) {
	for _, s := range []State{StateUnknown, StateDeployed, StateConfirmed} {
		assert.False(t, CanDeploy(s), s.String())
	}
	assert.True(t, CanDeploy(StateNotDeployed))
}
