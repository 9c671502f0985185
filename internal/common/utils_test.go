package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDigits(t *testing.T) {
	assert.True(t, IsDigits("100971"))
	assert.True(t, IsDigits("0"))
	assert.False(t, IsDigits(""))
	assert.False(t, IsDigits("2978b"))
	assert.False(t, IsDigits("Helsinki Kaisaniemi"))
	assert.False(t, IsDigits("10.5"))
	assert.False(t, IsDigits("-5"))
}
