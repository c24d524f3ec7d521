package process

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcessContextShutdown(t *testing.T) {
	pc := NewProcessContext()
	finished := make(chan struct{})

	pc.ComponentStarted()
	go func() {
		<-pc.WaitForShutdown()
		pc.ComponentFinished()
	}()

	go func() {
		pc.WaitForComponentsToFinish()
		close(finished)
	}()

	pc.ShutdownHearth()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("components did not finish after shutdown")
	}
	assert.Error(t, pc.Context().Err())
}

func TestProcessContextDegraded(t *testing.T) {
	pc := NewProcessContext()
	degraded, reasons := pc.IsDegraded()
	assert.False(t, degraded)
	assert.Empty(t, reasons)

	pc.Degraded(errors.New("store unreachable"))
	pc.Degraded(errors.New("store unreachable"))
	degraded, reasons = pc.IsDegraded()
	assert.True(t, degraded)
	assert.Equal(t, []string{"store unreachable"}, reasons)
}
