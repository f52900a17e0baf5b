package agent

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewContextAssignsSession(t *testing.T) {
	c := NewContext("hi", "", nil, testServers)
	require.Regexp(t, regexp.MustCompile(`^\d{8}-\d{6}-[0-9a-f]{8}$`), c.SessionID)
	require.Equal(t, []string{"documents", "math", "websearch"}, c.ServerIDs())
	require.Empty(t, c.toolDescriptions([]string{"math"}))

	kept := NewContext("hi", "s-1", nil, nil)
	require.Equal(t, "s-1", kept.SessionID)
	require.Empty(t, kept.ServerIDs())
}

func TestSessionIDsDiffer(t *testing.T) {
	require.NotEqual(t, NewSessionID(), NewSessionID())
}

func TestSessionIDOnContext(t *testing.T) {
	require.Empty(t, SessionIDFrom(context.Background()))
	require.Equal(t, "s-1", SessionIDFrom(WithSessionID(context.Background(), "s-1")))
}

func TestEmitWithoutListener(t *testing.T) {
	c := NewContext("hi", "s", nil, nil)
	require.NotPanics(t, func() { c.emit(Event{Kind: EventFinal}) })
}
