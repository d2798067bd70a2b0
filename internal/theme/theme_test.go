package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Light, Parse("light"))
	assert.Equal(t, Light, Parse("light-theme"))
	assert.Equal(t, Dark, Parse("DARK-THEME"))
	assert.Equal(t, Default, Parse(""))
	assert.Equal(t, Default, Parse("solarized"))
}

func TestToggle(t *testing.T) {
	assert.Equal(t, Light, Dark.Toggle())
	assert.Equal(t, Dark, Light.Toggle())
	assert.Equal(t, Dark, Light.Toggle().Toggle().Toggle())
}

func TestForReturnsNamedTheme(t *testing.T) {
	assert.Equal(t, Dark, For(Dark).Name)
	assert.Equal(t, Light, For(Light).Name)
	assert.NotEqual(t, Dark.Icon(), Light.Icon())
}
