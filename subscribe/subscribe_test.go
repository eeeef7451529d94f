package subscribe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *Client) interface{} {
	t.Helper()

	select {
	case upd := <-c.Updates():
		return upd
	case <-time.After(time.Second):
		t.Fatalf("no update received")
		return nil
	}
}

// TestFanOut checks that every client sees every update in order.
func TestFanOut(t *testing.T) {
	t.Parallel()

	s := NewServer(0)
	require.NoError(t, s.Start())
	t.Cleanup(func() { require.NoError(t, s.Stop()) })

	c1, err := s.Subscribe()
	require.NoError(t, err)
	c2, err := s.Subscribe()
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, s.SendUpdate(i))
	}

	for _, c := range []*Client{c1, c2} {
		for i := 0; i < 50; i++ {
			require.Equal(t, i, receive(t, c))
		}
	}
}

// TestReplayLatest checks that a late subscriber starts from the latest
// snapshot.
func TestReplayLatest(t *testing.T) {
	t.Parallel()

	s := NewServer(1)
	require.NoError(t, s.Start())
	t.Cleanup(func() { require.NoError(t, s.Stop()) })

	require.NoError(t, s.SendUpdate("draft"))
	require.NoError(t, s.SendUpdate("ready"))

	c, err := s.Subscribe()
	require.NoError(t, err)
	require.Equal(t, "ready", receive(t, c))

	require.NoError(t, s.SendUpdate("prepared"))
	require.Equal(t, "prepared", receive(t, c))
}

// TestCancelAndStop checks that quit channels close on cancel and on stop.
func TestCancelAndStop(t *testing.T) {
	t.Parallel()

	s := NewServer(0)
	require.NoError(t, s.Start())

	c1, err := s.Subscribe()
	require.NoError(t, err)
	c2, err := s.Subscribe()
	require.NoError(t, err)

	c1.Cancel()
	select {
	case <-c1.Quit():
	case <-time.After(time.Second):
		t.Fatalf("cancelled client not released")
	}

	require.NoError(t, s.Stop())
	select {
	case <-c2.Quit():
	case <-time.After(time.Second):
		t.Fatalf("client not released on stop")
	}

	require.ErrorIs(t, s.SendUpdate(1), ErrServerShuttingDown)
	_, err = s.Subscribe()
	require.ErrorIs(t, err, ErrServerShuttingDown)

	// Stopping twice is a no-op.
	require.NoError(t, s.Stop())
}
