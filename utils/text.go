package utils

import "github.com/samber/lo"

// Truncate shortens s to at most maxRunes characters, appending "..." when
// anything was cut. It never splits a multi-byte character.
func Truncate(s string, maxRunes int) string {
	if maxRunes < 0 || lo.RuneLength(s) <= maxRunes {
		return s
	}
	return lo.Substring(s, 0, uint(maxRunes)) + "..."
}
