package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRedirect(t *testing.T) {
	p, out, append, pipe := parseRedirect("foo")
	assert.Equal(t, "foo", p)
	assert.Equal(t, "", out)

	p, out, append, pipe = parseRedirect("foo >bar")
	assert.Equal(t, "foo", p)
	assert.Equal(t, "bar", out)
	assert.False(t, append)
	assert.False(t, pipe)

	p, out, append, pipe = parseRedirect("foo >> bar")
	assert.Equal(t, "foo", p)
	assert.Equal(t, "bar", out)
	assert.True(t, append)
	assert.False(t, pipe)

	p, out, append, pipe = parseRedirect("foo | less")
	assert.Equal(t, "foo", p)
	assert.Equal(t, "less", out)
	assert.False(t, append)
	assert.True(t, pipe)
}
