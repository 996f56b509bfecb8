package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstChoice(t *testing.T) {
	tests := []struct {
		name    string
		resp    *ChatResponse
		wantErr string
	}{
		{name: "nil response", resp: nil, wantErr: "nil ChatResponse"},
		{name: "empty choices", resp: &ChatResponse{}, wantErr: "empty choices"},
		{
			name: "first of many",
			resp: &ChatResponse{Choices: []ChatChoice{
				{Index: 0, Message: Message{Role: RoleAssistant, Content: "first"}},
				{Index: 1, Message: Message{Role: RoleAssistant, Content: "second"}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			choice, err := FirstChoice(tt.resp)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "first", choice.Message.Content)
		})
	}
}

func TestFirstContent(t *testing.T) {
	assert.Equal(t, "", FirstContent(nil))
	assert.Equal(t, "", FirstContent(&ChatResponse{}))
	assert.Equal(t, "hi", FirstContent(&ChatResponse{Choices: []ChatChoice{{Message: Message{Content: "hi"}}}}))
}

func TestIsRetryable(t *testing.T) {
	retryable := &Error{Code: ErrRateLimited, Message: "slow down", Retryable: true}
	permanent := &Error{Code: ErrUnauthorized, Message: "bad key"}

	assert.True(t, IsRetryable(retryable))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", retryable)))
	assert.False(t, IsRetryable(permanent))
	assert.False(t, IsRetryable(errors.New("plain")))

	got, ok := AsError(fmt.Errorf("wrapped: %w", permanent))
	require.True(t, ok)
	assert.Equal(t, ErrUnauthorized, got.Code)
}
