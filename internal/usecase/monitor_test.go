package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionIdentity_OrderOfTargetsDoesNotMatter(t *testing.T) {
	a := subscriptionIdentity("chanA", []string{"t1", "t2"})
	b := subscriptionIdentity("chanA", []string{"t2", "t1"})
	assert.Equal(t, a, b)
}

func TestSubscriptionIdentity_DifferentSourceOrTargetsDiffer(t *testing.T) {
	a := subscriptionIdentity("chanA", []string{"t1"})
	b := subscriptionIdentity("chanB", []string{"t1"})
	c := subscriptionIdentity("chanA", []string{"t1", "t2"})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestParseMonitorDeadline_Valid(t *testing.T) {
	deadline, err := parseMonitorDeadline("2030-6-15-9")
	require.NoError(t, err)
	assert.Equal(t, 2030, deadline.Year())
	assert.Equal(t, time.June, deadline.Month())
	assert.Equal(t, 15, deadline.Day())
	assert.Equal(t, 9, deadline.Hour())
}

func TestParseMonitorDeadline_WrongPartCount(t *testing.T) {
	_, err := parseMonitorDeadline("2030-6-15")
	assert.Error(t, err)
}

func TestParseMonitorDeadline_NonNumeric(t *testing.T) {
	_, err := parseMonitorDeadline("2030-June-15-9")
	assert.Error(t, err)
}
