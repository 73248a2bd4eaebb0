package rq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStateFilter(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "all means queued", input: "all", want: StatusQueued},
		{name: "empty means queued", input: "", want: StatusQueued},
		{name: "case insensitive", input: "FAILED", want: StatusFailed},
		{name: "started", input: "started", want: StatusStarted},
		{name: "scheduled", input: " scheduled ", want: StatusScheduled},
		{name: "canceled is not listed", input: "canceled", wantErr: true},
		{name: "unknown", input: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStateFilter(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalidArgument(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusKnown(t *testing.T) {
	assert.True(t, StatusStopped.Known())
	assert.True(t, StatusCanceled.Known())
	assert.False(t, Status("exploded").Known())
}

func TestStateCountsSum(t *testing.T) {
	var c StateCounts
	for i, s := range ListedStatuses {
		c.Set(s, int64(i+1))
	}
	c.Set(StatusCanceled, 100)

	assert.Equal(t, int64(1+2+3+4+5+6), c.Sum())
	assert.Equal(t, int64(4), c.Failed)
}

func TestOpError(t *testing.T) {
	err := Wrap("GetJob", "rq:job:x", ErrNotFound)
	assert.EqualError(t, err, "GetJob rq:job:x: not found")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsServiceUnavailable(err))
	assert.Nil(t, Wrap("GetJob", "", nil))

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "GetJob", opErr.Op)
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2024-01-15T12:30:45.123456Z")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 123456000, got.Nanosecond())
	assert.Equal(t, "2024-01-15T12:30:45.123456Z", FormatTime(*got))

	got, err = ParseTime("2024-01-15T12:30:45Z")
	require.NoError(t, err)
	assert.Equal(t, 45, got.Second())

	got, err = ParseTime("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}
