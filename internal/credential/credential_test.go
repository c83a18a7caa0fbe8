package credential

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct{}

func (failingSource) Token() (string, error) { return "", errors.New("keychain locked") }

func TestApply(t *testing.T) {
	h := http.Header{}
	require.NoError(t, Apply(h, nil))
	assert.Empty(t, h.Get("Authorization"))

	require.NoError(t, Apply(h, Static("")))
	assert.Empty(t, h.Get("Authorization"))

	require.NoError(t, Apply(h, Static("tok-1")))
	assert.Equal(t, "Bearer tok-1", h.Get("Authorization"))

	err := Apply(http.Header{}, failingSource{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keychain locked")
}

func TestFromHeader(t *testing.T) {
	assert.Equal(t, "abc", FromHeader("Bearer abc"))
	assert.Equal(t, "abc", FromHeader("bearer  abc "))
	assert.Equal(t, "", FromHeader("Basic abc"))
	assert.Equal(t, "", FromHeader("Bearer "))
	assert.Equal(t, "", FromHeader(""))
}
