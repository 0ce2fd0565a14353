// Package sanitize strips markup from free-text input before it is stored
// or forwarded to a payment gateway.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxPasses bounds how many layers of entity encoding are peeled off.
const maxPasses = 5

var strict = bluemonday.StrictPolicy()

// Text removes every HTML tag and attribute from s and trims surrounding space.
// Entity-encoded markup is decoded and stripped again until the text stops changing,
// so the plain result never carries a tag. Input that does not settle within
// maxPasses is returned in its escaped form.
func Text(s string) string {
	if s == "" {
		return ""
	}
	for i := 0; i < maxPasses; i++ {
		plain := html.UnescapeString(strict.Sanitize(s))
		if plain == s {
			return strings.TrimSpace(plain)
		}
		s = plain
	}
	return strings.TrimSpace(strict.Sanitize(s))
}
