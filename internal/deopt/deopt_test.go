package deopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, name := range Reasons() {
		r, err := ParseReason(name)
		require.NoError(t, err)
		assert.Equal(t, name, r.String())
	}
	for _, name := range Actions() {
		a, err := ParseAction(name)
		require.NoError(t, err)
		assert.Equal(t, name, a.String())
	}
	_, err := ParseReason("Nope")
	assert.Error(t, err)
	_, err = ParseAction("Nope")
	assert.Error(t, err)
}

func TestExceptionMapping(t *testing.T) {
	assert.Equal(t, "NullPointerException", NullCheck.Exception())
	assert.Equal(t, "ArrayIndexOutOfBoundsException", BoundsCheck.Exception())
	assert.Empty(t, LoopLimitCheck.Exception())
	assert.Empty(t, TransferToInterpreter.Exception())
}
