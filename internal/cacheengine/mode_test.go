package cacheengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModeTruthTable(t *testing.T) {
	cases := []struct {
		mode              Mode
		readable, writable, readOnly, writeOnly bool
	}{
		{ModeOff, false, false, false, false},
		{ModeRead, true, false, false, false},
		{ModeWrite, false, true, false, false},
		{ModeReadWrite, true, true, false, false},
		{ModeReadOnly, true, false, true, false},
		{ModeWriteOnly, false, true, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.mode.String(), func(t *testing.T) {
			assert.Equal(t, tc.readable, tc.mode.IsReadable())
			assert.Equal(t, tc.writable, tc.mode.IsWritable())
			assert.Equal(t, tc.readOnly, tc.mode.IsReadOnly())
			assert.Equal(t, tc.writeOnly, tc.mode.IsWriteOnly())
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("read-write")
	assert.NoError(t, err)
	assert.Equal(t, ModeReadWrite, m)

	_, err = ParseMode("bogus")
	assert.Error(t, err)
}
