package toolwire

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClasses_Distinguishable(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
		others   []error
	}{
		{
			err:      &ToolNotFoundError{Tool: "x", Provider: "p"},
			sentinel: ErrToolNotFound,
			others:   []error{ErrToolExecution, ErrConnection, ErrProtocol},
		},
		{
			err:      &ToolExecutionError{Tool: "x", Message: "boom"},
			sentinel: ErrToolExecution,
			others:   []error{ErrToolNotFound, ErrConnection, ErrProtocol},
		},
		{
			err:      &ConnectionError{Server: "s", Err: io.ErrUnexpectedEOF},
			sentinel: ErrConnection,
			others:   []error{ErrToolNotFound, ErrToolExecution, ErrProtocol},
		},
		{
			err:      &ProtocolError{Server: "s", Reason: "bad version"},
			sentinel: ErrProtocol,
			others:   []error{ErrToolNotFound, ErrToolExecution, ErrConnection},
		},
	}

	for _, tc := range cases {
		assert.ErrorIs(t, tc.err, tc.sentinel, "%T", tc.err)
		for _, other := range tc.others {
			assert.NotErrorIs(t, tc.err, other, "%T vs %v", tc.err, other)
		}
	}
}

func TestErrorClasses_SurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("while listing: %w", &ConnectionError{Server: "s1", Err: io.EOF})

	assert.ErrorIs(t, wrapped, ErrConnection)
	assert.ErrorIs(t, wrapped, io.EOF, "cause stays reachable through the chain")

	var connErr *ConnectionError
	require.ErrorAs(t, wrapped, &connErr)
	assert.Equal(t, "s1", connErr.Server)
}

func TestToolNotFoundError_Message(t *testing.T) {
	err := &ToolNotFoundError{Tool: "search", Provider: "registry"}
	assert.Equal(t, `toolwire: tool "search" not found in registry`, err.Error())
}

func TestConnectionError_NoCause(t *testing.T) {
	err := &ConnectionError{Server: "s1"}
	assert.Equal(t, `toolwire: connection to "s1" failed`, err.Error())
	assert.ErrorIs(t, err, ErrConnection)
	assert.False(t, errors.Is(err, io.EOF))
}
