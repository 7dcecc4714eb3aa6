package termutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/allewwaly/insight-vmi-sub006/termutil"
)

func TestBufferPrinter(t *testing.T) {
	p := termutil.NewBufferPrinter()
	p.WriteString("hello")
	assert.Equal(t, "hello", p.String())
	p.Reset()
	p.WriteString("olleh")
	assert.Equal(t, "olleh", p.String())
}
