package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "", MaskPhone(""))
	assert.Equal(t, "*********3333", MaskPhone("5491122223333"))
	assert.Equal(t, "+*********3333", MaskPhone("+5491122223333"))
	assert.Equal(t, "***", MaskPhone("123"))
	assert.Equal(t, "+**", MaskPhone("+12"))
}

func TestMaskWaMessageID(t *testing.T) {
	assert.Equal(t, "", MaskWaMessageID(""))

	masked := MaskWaMessageID("wamid.HBgNNTQ5MTEyMjIyMzMzMw")
	assert.Contains(t, masked, "wamid.")
	assert.NotContains(t, masked, "HBgNNTQ5")

	assert.Equal(t, "****", MaskWaMessageID("abcd")[0:4])
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "", MaskToken(""))
	assert.Equal(t, "****", MaskToken("short"))
	masked := MaskToken("EAABsbCS1234567890")
	assert.Equal(t, "EAAB...****", masked)
}
