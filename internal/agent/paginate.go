package agent

import "strings"

// Paginate splits text into display pages of at most maxChars characters by
// greedily packing whitespace-delimited words. Words are never split; a word
// longer than maxChars gets a page of its own. Empty input yields one empty
// page so pages[0] is always valid. maxChars <= 0 means no limit.
func Paginate(text string, maxChars int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	if maxChars <= 0 {
		return []string{strings.Join(words, " ")}
	}
	var pages []string
	var b strings.Builder
	n := 0 // runes in b
	for _, w := range words {
		wl := len([]rune(w))
		if n > 0 && n+1+wl > maxChars {
			pages = append(pages, b.String())
			b.Reset()
			n = 0
		}
		if n > 0 {
			b.WriteByte(' ')
			n++
		}
		b.WriteString(w)
		n += wl
	}
	if n > 0 {
		pages = append(pages, b.String())
	}
	return pages
}
