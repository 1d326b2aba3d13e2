package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminator_RecordsEvent(t *testing.T) {
	console := &fakeConsole{}
	events := &fakeEvents{}
	client := &models.Client{ID: "c1", Name: "Acme"}
	s := models.Session{ID: "s1", InfobaseName: "acme_buh", UserName: "ivanov"}

	err := NewTerminator(console, events).Terminate(context.Background(), "cl", client, s, ReasonQuotaExceeded)

	require.NoError(t, err)
	require.Len(t, console.terminated, 1)
	assert.Equal(t, terminateCall{ClusterID: "cl", SessionID: "s1", Reason: ReasonQuotaExceeded}, console.terminated[0])

	require.Len(t, events.events, 1)
	ev := events.events[0]
	assert.Equal(t, models.EventSeverityWarning, ev.Severity)
	assert.Equal(t, "c1", ev.ClientID)
	assert.Contains(t, ev.Message, `"Acme"`)
	assert.Contains(t, ev.Message, `"acme_buh"`)
	assert.Contains(t, ev.Message, `"ivanov"`)
}

func TestTerminator_UnknownUser(t *testing.T) {
	events := &fakeEvents{}
	client := &models.Client{ID: "c1", Name: "Acme"}

	err := NewTerminator(&fakeConsole{}, events).Terminate(context.Background(), "cl", client, models.Session{ID: "s1"}, ReasonBlocked)

	require.NoError(t, err)
	assert.Contains(t, events.events[0].Message, `user "unknown"`)
}

func TestTerminator_FailureNoEvent(t *testing.T) {
	console := &fakeConsole{killErrs: map[string]error{"s1": errors.New("denied")}}
	events := &fakeEvents{}

	err := NewTerminator(console, events).Terminate(context.Background(), "cl", &models.Client{Name: "Acme"}, models.Session{ID: "s1"}, ReasonBlocked)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "s1")
	assert.Empty(t, events.events)
}

func TestTerminator_EventSinkFailureIsNotFatal(t *testing.T) {
	events := &fakeEvents{err: errors.New("disk full")}

	err := NewTerminator(&fakeConsole{}, events).Terminate(context.Background(), "cl", &models.Client{Name: "Acme"}, models.Session{ID: "s1"}, ReasonBlocked)

	assert.NoError(t, err)
}
