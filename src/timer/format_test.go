package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{59, "00:59"},
		{1500, "25:00"},
		{1499, "24:59"},
		{3599, "59:59"},
		{3600, "01:00:00"},
		{3661, "01:01:01"},
		{36000, "10:00:00"},
		{-5, "00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.seconds), "Format(%d)", tt.seconds)
	}
}

func TestParse(t *testing.T) {
	for _, s := range []string{"00:00", "24:59", "01:01:01", "59:59"} {
		n, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, Format(n))
	}

	n, err := Parse("90")
	require.NoError(t, err)
	assert.Equal(t, 90, n)

	for _, bad := range []string{"", "1:2:3:4", "aa:00", "00:60", "-1:00"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}
