// ABOUTME: Tests for connection params and the mock dialer used across packages.
// ABOUTME: Covers address defaults, validation, error unwrapping and scripted dials.

package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Addr(t *testing.T) {
	assert.Equal(t, "mc.example.net:25565", Params{Host: "mc.example.net"}.Addr())
	assert.Equal(t, "mc.example.net:25570", Params{Host: "mc.example.net", Port: 25570}.Addr())
	assert.Equal(t, "[::1]:25565", Params{Host: "::1"}.Addr())
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, Params{Host: "localhost"}.Validate())
	assert.Error(t, Params{}.Validate())
	assert.Error(t, Params{Host: "localhost", Port: 70000}.Validate())
	assert.Error(t, Params{Host: "localhost", Port: -1}.Validate())
}

func TestConnectError_Unwrap(t *testing.T) {
	err := error(&ConnectError{Addr: "a:1", Err: ErrRejected})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "a:1")

	var ce *ConnectError
	assert.True(t, errors.As(err, &ce))
}

type recordingListener struct {
	ready      int
	terminated []string
	errs       []error
}

func (l *recordingListener) OnReady()                  { l.ready++ }
func (l *recordingListener) OnTerminated(reason string) { l.terminated = append(l.terminated, reason) }
func (l *recordingListener) OnError(err error)          { l.errs = append(l.errs, err) }

func TestMockDialer_ScriptedOutcomes(t *testing.T) {
	d := NewMockDialer()
	d.Script(ErrMockDial, nil)
	l := &recordingListener{}

	_, err := d.Dial(context.Background(), Params{Host: "h"}, l)
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrMockDial)

	conn, err := d.Dial(context.Background(), Params{Host: "h"}, l)
	require.NoError(t, err)
	assert.True(t, conn.Ready())
	assert.Equal(t, 1, l.ready)

	// Queue exhausted: default success.
	_, err = d.Dial(context.Background(), Params{Host: "h"}, l)
	require.NoError(t, err)
	assert.Equal(t, 3, d.DialCount())
	assert.Len(t, d.Conns(), 2)
}

func TestMockConn_CommandsAfterTerminationAreNoOps(t *testing.T) {
	l := &recordingListener{}
	c := NewMockConn(l)

	require.NoError(t, c.Navigate(1, 0, -1))
	c.Terminate("kicked")
	c.Terminate("kicked again")

	assert.False(t, c.Ready())
	assert.NoError(t, c.Swing())
	assert.Equal(t, 1, c.Count(CmdNavigate))
	assert.Equal(t, 0, c.Count(CmdSwing))
	assert.Equal(t, []string{"kicked"}, l.terminated)
}

func TestMockConn_FailWith(t *testing.T) {
	c := NewMockConn(nil)
	boom := errors.New("boom")
	c.FailWith(func(cmd Command) error {
		if cmd.Name == CmdLook {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, c.Look(1, 0), boom)
	yaw, _ := c.Heading()
	assert.Zero(t, yaw)
	assert.NoError(t, c.Swing())
	assert.Len(t, c.Commands(), 2)
}
