package discord

import (
	"regexp"
	"strings"
)

var reMention = regexp.MustCompile(`<@!?(\d+)>`)

func parseIDs(tokens []string) []string {
	ids := []string{}
	for _, tok := range tokens {
		if m := reMention.FindStringSubmatch(tok); len(m) == 2 {
			ids = append(ids, m[1])
			continue
		}
		if tok != "" && strings.IndexFunc(tok, func(r rune) bool { return r < '0' || r > '9' }) == -1 {
			ids = append(ids, tok)
		}
	}
	return ids
}
