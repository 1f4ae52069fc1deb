package content

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.UGCPolicy()

// Sanitize removes unsafe HTML from the input string using a strict
// policy. It is applied to message text before persistence.
func Sanitize(input string) string {
	return strings.TrimSpace(policy.Sanitize(input))
}
