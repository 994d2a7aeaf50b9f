package htmldom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		raw  string
		ok   bool
		spec int
	}{
		{raw: "body", ok: true, spec: 1},
		{raw: ".card", ok: true, spec: 10},
		{raw: "#main", ok: true, spec: 100},
		{raw: "div.card.wide", ok: true, spec: 21},
		{raw: "main > .card", ok: true, spec: 11},
		{raw: "main>.card", ok: true, spec: 11},
		{raw: "html body div", ok: true, spec: 3},
		{raw: "*", ok: true, spec: 0},
		{raw: ":root", ok: true, spec: 10},
		{raw: "a:hover", ok: false},
		{raw: "input[type=text]", ok: false},
		{raw: "h1 + p", ok: false},
		{raw: "main >", ok: false},
		{raw: "div.", ok: false},
		{raw: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			sel, ok := parseSelector(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.spec, sel.spec)
			}
		})
	}
}

func TestParseStylesheet(t *testing.T) {
	css := `
/* header */
@media (max-width: 600px) { body { background: red } }
body, .card { background-color: #fff }
a:hover { color: red }
.empty { }
#main { color: #111 !important; }
`
	rules, next := parseStylesheet(css, 4)
	require.Len(t, rules, 3)
	assert.Equal(t, 7, next)
	assert.Equal(t, 4, rules[0].order)
	assert.Equal(t, 5, rules[1].order)

	last := rules[2]
	require.Len(t, last.decls, 1)
	assert.Equal(t, declaration{prop: "color", value: "#111", important: true}, last.decls[0])
}

func TestSplitBackground(t *testing.T) {
	tests := []struct {
		value      string
		wantColour string
		wantImage  string
	}{
		{value: "#fff", wantColour: "#fff", wantImage: "none"},
		{value: "white", wantColour: "white", wantImage: "none"},
		{value: "url(a.png) no-repeat", wantColour: "transparent", wantImage: "url(a.png)"},
		{value: "#fafafa url(a.png) repeat-x", wantColour: "#fafafa", wantImage: "url(a.png)"},
		{value: "linear-gradient(#fff, #000)", wantColour: "transparent", wantImage: "linear-gradient(#fff, #000)"},
		{value: "rgba(255, 255, 255, 0.5) center", wantColour: "rgba(255, 255, 255, 0.5)", wantImage: "none"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			c, img := splitBackground(tt.value)
			assert.Equal(t, tt.wantColour, c)
			assert.Equal(t, tt.wantImage, img)
		})
	}
}

func TestResolveColour(t *testing.T) {
	c, ok := resolveColour("WhiteSmoke")
	require.True(t, ok)
	assert.Equal(t, "rgb(245, 245, 245)", serialiseComputed(c))

	c, ok = resolveColour("rgba(0, 0, 0, 0.5)")
	require.True(t, ok)
	assert.Equal(t, "rgba(0, 0, 0, 0.5)", serialiseComputed(c))

	_, ok = resolveColour("currentcolor")
	assert.False(t, ok)
}
