package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWallet(t *testing.T) {
	got, ok := NormalizeWallet("  0x3344BEEd6bED5079bf57B63a72d8823Ec402022d ")
	assert.True(t, ok)
	assert.Equal(t, "0x3344beed6bed5079bf57b63a72d8823ec402022d", got)

	for _, bad := range []string{
		"",
		"3344beed6bed5079bf57b63a72d8823ec402022d",
		"0x3344beed",
		"0xZZ44beed6bed5079bf57b63a72d8823ec402022d",
		"0x3344beed6bed5079bf57b63a72d8823ec402022d00",
	} {
		_, ok := NormalizeWallet(bad)
		assert.False(t, ok, bad)
	}
}
