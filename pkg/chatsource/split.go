package chatsource

import "strings"

// SplitMessage breaks text into chunks of at most maxLen runes for platforms
// with a message size limit. It prefers to split between lines and only
// cuts inside a line that is longer than maxLen on its own. maxLen <= 0
// returns text unsplit.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 || runeLen(text) <= maxLen {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
		}
		cur.Reset()
		curLen = 0
	}

	for _, line := range strings.Split(text, "\n") {
		n := runeLen(line)

		sep := 0
		if curLen > 0 {
			sep = 1
		}
		if curLen+sep+n <= maxLen {
			if sep == 1 {
				cur.WriteByte('\n')
			}
			cur.WriteString(line)
			curLen += sep + n
			continue
		}

		flush()

		runes := []rune(line)
		for len(runes) > maxLen {
			chunks = append(chunks, string(runes[:maxLen]))
			runes = runes[maxLen:]
		}
		cur.WriteString(string(runes))
		curLen = len(runes)
	}
	flush()

	return chunks
}

func runeLen(s string) int { return len([]rune(s)) }
