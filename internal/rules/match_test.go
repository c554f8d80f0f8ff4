package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTimeRule(t *testing.T, pattern, start, end, zone string) TimeRule {
	t.Helper()
	r, err := NewTimeRule(pattern, start, end, zone)
	require.NoError(t, err)
	return r
}

func mustLocationRule(t *testing.T, pattern, value string) LocationRule {
	t.Helper()
	r, err := NewLocationRule(pattern, value)
	require.NoError(t, err)
	return r
}

func TestMatchReturnsFirstMatchingRule(t *testing.T) {
	list := []LocationRule{
		mustLocationRule(t, "nowhere", "Room A"),
		mustLocationRule(t, "meeting", "Room B"),
		mustLocationRule(t, "team", "Room C"),
	}

	// "Team Meeting" matches both the second and third rule; declaration
	// order decides.
	got, ok := Match("Team Meeting", list).Get()
	require.True(t, ok)
	assert.Equal(t, "Room B", got.Value)
}

func TestMatchReturnsNoneWithoutMatch(t *testing.T) {
	list := []LocationRule{
		mustLocationRule(t, "standup", "Room A"),
	}

	opt := Match("Lunch", list)
	assert.True(t, opt.IsAbsent())
}

func TestMatchEmptyRuleList(t *testing.T) {
	opt := Match("anything", []TimeRule{})
	assert.True(t, opt.IsAbsent())
}

func TestMatchWorksForTimeRules(t *testing.T) {
	list := []TimeRule{
		mustTimeRule(t, "daily", "08:00:00", "09:00:00", "UTC"),
		mustTimeRule(t, "sync", "10:00:00", "11:00:00", "UTC"),
	}

	got, ok := Match("Weekly Sync", list).Get()
	require.True(t, ok)
	assert.Equal(t, 10, got.Start.Hour)
}

func TestMatchKindsAreIndependent(t *testing.T) {
	set := Set{
		Time:     []TimeRule{mustTimeRule(t, "meeting", "09:00:00", "10:00:00", "UTC")},
		Location: []LocationRule{mustLocationRule(t, "standup", "Room B")},
	}

	// One summary can match a rule of each kind at the same time.
	_, timeOK := Match("Standup Meeting", set.Time).Get()
	_, locOK := Match("Standup Meeting", set.Location).Get()
	assert.True(t, timeOK)
	assert.True(t, locOK)

	// Or only one of them.
	_, timeOK = Match("Daily Standup", set.Time).Get()
	_, locOK = Match("Daily Standup", set.Location).Get()
	assert.False(t, timeOK)
	assert.True(t, locOK)
}
