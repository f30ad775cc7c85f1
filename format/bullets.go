package format

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const Bullet = "•"

// bulletItem reports whether a trimmed line is a bullet and returns its text.
// "*" and "-" need a following space so "**bold**" and "--" lines stay as they are.
func bulletItem(trimmed string) (string, bool) {
	switch {
	case strings.HasPrefix(trimmed, Bullet):
		return strings.TrimSpace(strings.TrimPrefix(trimmed, Bullet)), true
	case strings.HasPrefix(trimmed, "* "), strings.HasPrefix(trimmed, "*\t"):
		return strings.TrimSpace(trimmed[1:]), true
	case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "-\t"):
		return strings.TrimSpace(trimmed[1:]), true
	}
	return "", false
}

// BulletItems returns the bullet texts of content. When content has no bullet markers and is
// a single line, it falls back to splitting that line into sentences. The split is a
// heuristic: a period followed by whitespace and a capital letter ends a sentence, so
// abbreviations like "U.S. Businesses" split too.
func BulletItems(content string) []string {
	lines := nonEmptyLines(content)
	var items []string
	explicit := false
	for _, l := range lines {
		if item, ok := bulletItem(l); ok {
			explicit = true
			if item != "" {
				items = append(items, item)
			}
		}
	}
	if explicit {
		return items
	}
	if len(lines) == 1 {
		return SplitSentences(lines[0])
	}
	return nil
}

// NormalizeBullets rewrites "*" and "-" bullet lines as "• " lines, one item per line.
// Non-bullet lines pass through trimmed. A single un-bulleted line holding several
// sentences becomes one bullet per sentence.
func NormalizeBullets(content string) string {
	lines := nonEmptyLines(content)
	if len(lines) == 1 {
		if _, ok := bulletItem(lines[0]); !ok {
			sentences := SplitSentences(lines[0])
			if len(sentences) > 1 {
				return joinBullets(sentences)
			}
			return lines[0]
		}
	}

	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	blank := false
	prevBullet := false
	for _, l := range raw {
		t := strings.TrimSpace(l)
		if t == "" {
			blank = len(out) > 0
			continue
		}
		item, isBullet := bulletItem(t)
		if blank && !isBullet && !prevBullet {
			out = append(out, "")
		}
		blank = false
		if isBullet {
			if item == "" {
				continue
			}
			out = append(out, Bullet+" "+item)
		} else {
			out = append(out, t)
		}
		prevBullet = isBullet
	}
	return strings.Join(out, "\n")
}

func joinBullets(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = Bullet + " " + it
	}
	return strings.Join(lines, "\n")
}

// SplitSentences splits s into sentences. A sentence ends at a period followed by whitespace
// and an upper-case letter. '!' and '?' end a sentence under the same rule. A period inside
// a number or before a lower-case word does not split.
func SplitSentences(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var sentences []string
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i
		for j < len(s) {
			ws, n := utf8.DecodeRuneInString(s[j:])
			if !unicode.IsSpace(ws) {
				break
			}
			j += n
		}
		if j == i || j >= len(s) {
			continue
		}
		next, _ := utf8.DecodeRuneInString(s[j:])
		if !unicode.IsUpper(next) {
			continue
		}
		sentences = append(sentences, strings.TrimSpace(s[start:i]))
		start = j
		i = j
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// CountSentences counts sentences with the same rule SplitSentences uses.
func CountSentences(s string) int {
	return len(SplitSentences(strings.Join(strings.Fields(s), " ")))
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	return lines
}
