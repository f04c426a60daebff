package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter(t *testing.T) {
	f := Filter{}
	assert.True(t, f.Skip("Deploy cart at 2222222"+f.Suffix()))
	assert.True(t, f.Skip("  [skip ci]  "))
	assert.False(t, f.Skip("Change cart"))
	// mentioning the marker in passing is not marking the commit
	assert.False(t, f.Skip("Explain why we add [skip ci] to pipeline commits"))

	custom := Filter{Marker: "[pipeline skip]"}
	assert.True(t, custom.Skip("Deploy"+custom.Suffix()))
	assert.False(t, custom.Skip("Deploy"+f.Suffix()))
}
