package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePage(t *testing.T) {
	tests := map[string]string{
		"home":              "home",
		"/home":             "home",
		"home.html":         "home",
		"/settings/":        "settings",
		"/send.html?to=abc": "send",
		"wallet#top":        "wallet",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePage(in), in)
	}
}

func TestNavigatorAllowlist(t *testing.T) {
	nav := NewNavigator("solana", "index.html", []string{"home", "/settings", "tokens/**", "send.html"}, nil)

	tests := []struct {
		target string
		want   bool
	}{
		{"home", true},
		{"/home.html", true},
		{"settings/network", true},
		{"index", true},
		{"send", true},
		{"tokens/usdc/detail", true},
		{"admin", false},
		{"homepage", false},
		{"home/../admin", false},
		{"", false},
		{"https://solana.miniapp.local/home", true},
		{"https://ethereum.miniapp.local/home", false},
		{"https://evil.example.com/home", false},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, nav.Allowed(tt.target))
		})
	}
}

func TestNavigatorWithoutPagesOnlyAllowsMain(t *testing.T) {
	nav := NewNavigator("solana", "index.html", nil, nil)
	assert.True(t, nav.Allowed("index.html"))
	assert.False(t, nav.Allowed("home"))
}
