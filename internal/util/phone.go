package util

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D+`)

// NormalizePhone turns user input into the digits-only international form the
// WhatsApp bridge expects (Brazil country code 55 assumed for local numbers).
func NormalizePhone(raw string) string {
	s := nonDigits.ReplaceAllString(strings.TrimSpace(raw), "")

	switch {
	case strings.HasPrefix(s, "00"):
		s = s[2:]
	case strings.HasPrefix(s, "0") && (len(s) == 11 || len(s) == 12):
		s = "55" + s[1:]
	case len(s) == 10 || len(s) == 11:
		s = "55" + s
	}

	return s
}
