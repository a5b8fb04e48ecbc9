package palette

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

func TestNew_DefaultScheme(t *testing.T) {
	p := New()
	assert.Equal(t, DefaultScheme, p.Scheme())
	assert.Equal(t, []string{DefaultScheme}, p.Schemes())
	assert.Equal(t, beforeDawn[0], p.Color("a"))
	assert.Equal(t, beforeDawn[1], p.Color("b"))
}

func TestColor_StableWithinRender(t *testing.T) {
	p := New()
	first := p.Color("a;b")
	_ = p.Color("a;c")
	assert.Equal(t, first, p.Color("a;b"))

	c, ok := p.Lookup("a;c")
	assert.True(t, ok)
	assert.Equal(t, beforeDawn[1], c)
	_, ok = p.Lookup("a;d")
	assert.False(t, ok)
}

func TestColor_SkipsImmediateRepeat(t *testing.T) {
	p := New()
	p.AddScheme("duo", []string{"red", "blue"})
	require.NoError(t, p.SetScheme("duo"))

	assert.Equal(t, "red", p.Color("x"))
	assert.Equal(t, "blue", p.Color("y"))
	assert.Equal(t, "red", p.Color("x"))
	// red would repeat the previous draw, so z moves on to blue.
	assert.Equal(t, "blue", p.Color("z"))
	assert.Equal(t, "blue", p.Color("y"))
	assert.Equal(t, "red", p.Color("w"))
}

func TestColor_RepeatIsSkipped(t *testing.T) {
	p := New()
	p.AddScheme("mono-ish", []string{"red", "red", "blue"})
	require.NoError(t, p.SetScheme("mono-ish"))

	assert.Equal(t, "red", p.Color("x"))
	assert.Equal(t, "blue", p.Color("y"), "second red skipped")
}

func TestCustomColor_AdvancesScheme(t *testing.T) {
	p := New()
	p.SetCustomColor("a", "#000000")

	assert.Equal(t, "#000000", p.Color("a"))
	assert.Equal(t, beforeDawn[1], p.Color("b"))
	c, ok := p.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, "#000000", c)
	assert.Equal(t, map[string]string{"a": "#000000"}, p.CustomColors())

	p.RemoveCustomColor("a")
	p.Reset()
	assert.Equal(t, beforeDawn[0], p.Color("a"))
}

func TestReset_RewindsScheme(t *testing.T) {
	p := New()
	_ = p.Color("a")
	_ = p.Color("b")
	p.Reset()

	_, ok := p.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, beforeDawn[0], p.Color("b"))
}

func TestSetScheme_Unknown(t *testing.T) {
	p := New()
	err := p.SetScheme("sunset")
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsCode(err, errors.ErrCodeSchemeNotFound))
	assert.Equal(t, DefaultScheme, p.Scheme())
}

func TestLoadSchemes(t *testing.T) {
	p := New()
	p.LoadSchemes(map[string][]string{
		"marine": {"#d9ed92", "#b5e48c"},
		"empty":  nil,
	})
	assert.Equal(t, []string{DefaultScheme, "marine"}, p.Schemes())

	require.NoError(t, p.SetScheme("marine"))
	assert.Equal(t, "#d9ed92", p.Color("a"))
	assert.Equal(t, "#b5e48c", p.Color("b"))
	assert.Equal(t, "#d9ed92", p.Color("c"), "scheme wraps")
}
