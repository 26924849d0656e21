package worker

import (
	"strings"

	"github.com/jmehdipour/duebot/internal/model"
)

// Render replaces every {key} placeholder with its variable value. Unknown
// placeholders are left as written.
func Render(content string, vars model.Variables) string {
	if len(vars) == 0 {
		return content
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(content)
}
