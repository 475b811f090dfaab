package access

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentSourceText(t *testing.T) {
	for _, s := range []AssignmentSource{SourceNone, SourceGroup, SourceDirect} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back AssignmentSource
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	_, err := AssignmentSource(7).MarshalText()
	assert.Error(t, err)

	var s AssignmentSource
	assert.Error(t, s.UnmarshalText([]byte("group")))
}

func TestAssignmentSourceJSON(t *testing.T) {
	out, err := json.Marshal(PermissionCheckResult{SecurityID: 1, HasAccess: true, AssignmentSource: SourceDirect})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"assignment_source":"Direct"`)

	assert.True(t, SourceGroup.Granted())
	assert.False(t, SourceNone.Granted())
}
