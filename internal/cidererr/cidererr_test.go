package cidererr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesWrappedCause(t *testing.T) {
	inner := errors.New("connection refused")
	err := Wrap(KindNetwork, "dial peer", inner)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "network")
}

func TestUnwrapExposesCause(t *testing.T) {
	inner := errors.New("boom")
	err := Wrap(KindPlayer, "seek", inner)
	assert.ErrorIs(t, err, inner)
}

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := New(KindUnauthorized, "bad token")
	wrapped := fmt.Errorf("request failed: %w", err)
	assert.True(t, Is(wrapped, KindUnauthorized))
	assert.False(t, Is(wrapped, KindNetwork))
}

func TestIsFalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), KindInternal))
}
