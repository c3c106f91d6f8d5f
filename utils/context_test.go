package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsContextCanceled(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "direct context.Canceled", err: context.Canceled, expected: true},
		{name: "wrapped context.Canceled", err: fmt.Errorf("wrapped: %w", context.Canceled), expected: true},
		{name: "deadline exceeded", err: fmt.Errorf("GET /images: %w", context.DeadlineExceeded), expected: true},
		{
			name:     "string contains context canceled",
			err:      errors.New("Get \"http://127.0.0.1:8080/images/3\": context canceled"),
			expected: true,
		},
		{name: "other error", err: errors.New("connection refused"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsContextCanceled(tt.err))
		})
	}
}

func TestSanitizeLogUsername(t *testing.T) {
	assert.Equal(t, "alice", SanitizeLogUsername("alice"))
	assert.Equal(t, "bob\n", SanitizeLogUsername("bob\n\x00"))

	long := ""
	for i := 0; i < 60; i++ {
		long += "a"
	}
	assert.Len(t, SanitizeLogUsername(long), 53)
}
