package kerr_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
)

func TestEAndIs(t *testing.T) {
	err := kerr.E(kerr.TypeError, kerr.Location{File: "foo.c", Line: 12}, "pointer *= pointer")
	assert.True(t, kerr.Is(kerr.TypeError, err))
	assert.False(t, kerr.Is(kerr.MemoryError, err))
	assert.Equal(t, "foo.c:12: TypeError: pointer *= pointer", err.Error())
}

func TestEWrapsCause(t *testing.T) {
	cause := fmt.Errorf("read past end of dump")
	err := kerr.E(kerr.MemoryError, "translate addr", cause)
	assert.True(t, kerr.Is(kerr.MemoryError, err))
	assert.ErrorIs(t, err, cause)
}

func TestKindStringDefault(t *testing.T) {
	assert.Equal(t, "Error", kerr.Other.String())
	assert.Equal(t, "Cancelled", kerr.Cancelled.String())
}
