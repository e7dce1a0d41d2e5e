package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextStripsMarkup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "Jazz in the Sculpture Garden", "Jazz in the Sculpture Garden"},
		{"empty input", "", ""},
		{"formatting tags dropped", "<b>Vermeer</b> and <i>the Masters</i>", "Vermeer and the Masters"},
		{"script removed with body", "Free tour <script>alert(1)</script>at noon", "Free tour at noon"},
		{"event handlers removed", `<div onclick="steal()">Gallery Talk</div>`, "Gallery Talk"},
		{"iframe removed", `Tickets <iframe src="https://evil.example"></iframe>here`, "Tickets here"},
		{"img with onerror removed", `<img src=x onerror=alert(1)>`, ""},
		{"anchor keeps text only", `<a href="javascript:alert(1)">Register</a>`, "Register"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.input))
		})
	}
}

func TestTextNeutralizesInjectionVectors(t *testing.T) {
	vectors := []string{
		`<script>alert('x')</script>`,
		`<svg onload=alert('x')>`,
		`<input autofocus onfocus=alert('x')>`,
		`<details ontoggle=alert('x')><summary>Open</summary></details>`,
		`<meta http-equiv="refresh" content="0;url=javascript:alert('x')">`,
		`<object data="javascript:alert('x')">`,
		`<embed src="javascript:alert('x')">`,
	}
	for _, input := range vectors {
		out := Text(input)
		assert.NotContains(t, strings.ToLower(out), "<script")
		assert.NotContains(t, strings.ToLower(out), "javascript:")
		assert.NotContains(t, strings.ToLower(out), "alert")
	}
}

func TestTextSlice(t *testing.T) {
	assert.Nil(t, TextSlice(nil))
	assert.Equal(t, []string{}, TextSlice([]string{}))
	assert.Equal(t,
		[]string{"museum", "music", "live"},
		TextSlice([]string{"museum", "<script>x</script>music", "live<img src=x onerror=alert(1)>"}))
}
