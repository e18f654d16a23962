package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidLinkHref(t *testing.T) {
	tests := []struct {
		href string
		want bool
	}{
		{"https://example.com", true},
		{"http://example.com/a?b=c", true},
		{" https://example.com ", true},
		{"javascript:alert(1)", false},
		{"ftp://example.com", false},
		{"mailto:a@b.com", false},
		{"/relative/path", false},
		{"https://", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidLinkHref(tt.href), tt.href)
	}
}

func TestStripUnsafeLinks(t *testing.T) {
	out := StripUnsafeLinks(`<p><a href="javascript:alert(1)">x</a> <a href="https://ok.com">y</a></p>`)
	assert.Equal(t, `<p><a>x</a> <a href="https://ok.com">y</a></p>`, out)
	assert.Equal(t, "", StripUnsafeLinks(""))
}

func TestUgcPolicy(t *testing.T) {
	out := UgcPolicy.Sanitize(`<p onclick="x()">a<script>alert(1)</script><a href="javascript:void(0)">b</a></p>`)
	assert.NotContains(t, out, "script")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "javascript")

	assert.Equal(t, "bold", StripTagsPolicy.Sanitize("<b>bold</b>"))
}
