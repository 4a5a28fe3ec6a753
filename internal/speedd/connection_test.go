package speedd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadDeadline_DispatchersAreExempt(t *testing.T) {
	mgr := NewConnectionManager(NewDatabase(nil))
	now := time.Now()

	c := NewClientConnection(nil, mgr)
	assert.Equal(t, now.Add(MaxDeadlineDuration), c.readDeadline(now),
		"unidentified clients get the inactivity timeout")

	c.stateMu.Lock()
	c.role = roleCamera
	c.stateMu.Unlock()
	assert.Equal(t, now.Add(MaxDeadlineDuration), c.readDeadline(now),
		"cameras get the inactivity timeout")

	d := NewClientConnection(nil, mgr)
	d.stateMu.Lock()
	d.role = roleDispatcher
	d.stateMu.Unlock()
	assert.True(t, d.readDeadline(now).IsZero(),
		"identified dispatchers wait for tickets with no deadline")
}
