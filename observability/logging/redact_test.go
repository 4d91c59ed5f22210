package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecretsAreNotAllowlisted(t *testing.T) {
	for _, key := range []string{"bearer_token", "token", "authorization", "signer_key"} {
		require.False(t, IsAllowlisted(key), key)
	}
	require.True(t, IsAllowlisted(" Member "))
	require.Contains(t, RedactionAllowlist(), "reason")
}

func TestMaskValue(t *testing.T) {
	require.Equal(t, "", MaskValue(""))
	require.Equal(t, RedactedValue, MaskValue("hunter2"))
	require.Equal(t, "0xabc", MaskField("member", "0xabc").Value.String())
	require.Equal(t, RedactedValue, MaskField("token", "abc").Value.String())
}
