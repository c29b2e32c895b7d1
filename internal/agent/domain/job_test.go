package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpoint_Enabled(t *testing.T) {
	assert.False(t, Endpoint{}.Enabled())
	assert.False(t, Endpoint{Address: "10.0.0.1", Port: 0}.Enabled())
	assert.False(t, Endpoint{Address: "10.0.0.1", Port: -1}.Enabled())
	assert.True(t, Endpoint{Address: "10.0.0.1", Port: 9000}.Enabled())
}

func TestEndpoint_HostPort(t *testing.T) {
	e := Endpoint{Address: "192.168.1.20", Port: 8042}
	assert.Equal(t, "192.168.1.20:8042", e.HostPort())
}

func TestJobSpec_CommandLine(t *testing.T) {
	assert.Equal(t, "systeminfo", JobSpec{Command: "systeminfo"}.CommandLine())
	assert.Equal(t, "run.ps1 -Fast -Full",
		JobSpec{Command: "run.ps1", Args: []string{"-Fast", "-Full"}}.CommandLine())
}

func TestJobSpec_Validate(t *testing.T) {
	assert.ErrorIs(t, JobSpec{}.Validate(), ErrInvalidCommand)
	assert.NoError(t, JobSpec{Command: "true"}.Validate())
}

func TestJobState_IsTerminal(t *testing.T) {
	assert.False(t, StateRunning.IsTerminal())
	assert.True(t, StateExited.IsTerminal())
	assert.True(t, StateKilled.IsTerminal())
}
