package errcat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCategoryRoundTrip(t *testing.T) {
	err := NoPath.New("no alive path")
	assert.Equal(t, NoPath, GetCategory(err))
	assert.True(t, NoPath.Transient())
}

func TestGetCategoryUnknownForPlainError(t *testing.T) {
	assert.Equal(t, Unknown, GetCategory(fmt.Errorf("boom")))
	assert.Equal(t, OK, GetCategory(nil))
}

func TestAuthFailedNotTransient(t *testing.T) {
	assert.False(t, AuthFailed.Transient())
	assert.False(t, NotInitialized.Transient())
}

func TestNewfWrapsWithPercentW(t *testing.T) {
	inner := fmt.Errorf("inner")
	err := PlatformError.Newf("wrapped: %w", inner)
	assert.Equal(t, PlatformError, GetCategory(err))
}
