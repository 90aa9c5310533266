package logx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentEntriesFilterByComponent(t *testing.T) {
	l1 := NewLogger("alpha")
	l2 := NewLogger("beta")

	l1.Info("first from alpha")
	l2.Info("first from beta")
	l1.Warn("second from alpha")

	alpha := RecentEntries("alpha")
	require.GreaterOrEqual(t, len(alpha), 2)
	for _, e := range alpha {
		assert.Equal(t, "alpha", e.Component)
	}

	all := RecentEntries("")
	assert.GreaterOrEqual(t, len(all), 3)
}

func TestDebugSuppressedByDefault(t *testing.T) {
	SetDebug(false)
	l := NewLogger("quiet")
	before := len(RecentEntries("quiet"))
	l.Debug("should not appear")
	assert.Equal(t, before, len(RecentEntries("quiet")))

	SetDebug(true)
	defer SetDebug(false)
	l.Debug("now visible")
	after := RecentEntries("quiet")
	require.NotEmpty(t, after)
	assert.Equal(t, "DEBUG", after[len(after)-1].Level)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
}

func TestErrorfReturnsError(t *testing.T) {
	err := Errorf("failed to open %s", "case-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "case-1")
}
