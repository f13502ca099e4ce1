package agent

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPaginate_FiveHundredChars(t *testing.T) {
	pages := Paginate(fiveHundredChars(), 150)
	want := []int{149, 149, 149, 50}
	if len(pages) != len(want) {
		t.Fatalf("got %d pages, want %d", len(pages), len(want))
	}
	for i, p := range pages {
		if len(p) != want[i] {
			t.Fatalf("page %d length = %d, want %d", i, len(p), want[i])
		}
	}
}

func TestPaginate_EdgeCases(t *testing.T) {
	cases := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"empty", "", 150, []string{""}},
		{"whitespace", "  \n\t ", 150, []string{""}},
		{"single short", "hello", 150, []string{"hello"}},
		{"exact fit", "aaaa bbbb", 9, []string{"aaaa bbbb"}},
		{"one over", "aaaa bbbbb", 9, []string{"aaaa", "bbbbb"}},
		{"long word", "a " + strings.Repeat("z", 20) + " b", 10, []string{"a", strings.Repeat("z", 20), "b"}},
		{"collapses whitespace", "a\n\nb   c", 150, []string{"a b c"}},
		{"no limit", "a b c", 0, []string{"a b c"}},
		{"runes not bytes", "ééé ééé", 7, []string{"ééé ééé"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Paginate(tc.text, tc.max)
			if len(got) != len(tc.want) {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("page %d: got %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

// Joining the pages gives back the normalized words, and no page exceeds the
// limit unless it holds a single oversized word.
func TestPaginate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcdefghijklmnopqrstuvwxyzäöü")
	for iter := 0; iter < 200; iter++ {
		var words []string
		for n := rng.Intn(80); n > 0; n-- {
			w := make([]rune, 1+rng.Intn(25))
			for i := range w {
				w[i] = alphabet[rng.Intn(len(alphabet))]
			}
			words = append(words, string(w))
		}
		limit := 5 + rng.Intn(150)
		pages := Paginate(strings.Join(words, "  "), limit)

		if len(words) == 0 {
			if len(pages) != 1 || pages[0] != "" {
				t.Fatalf("empty input gave %q", pages)
			}
			continue
		}
		if got, want := strings.Join(pages, " "), strings.Join(words, " "); got != want {
			t.Fatalf("round trip mismatch:\n got %q\nwant %q", got, want)
		}
		for i, p := range pages {
			if p == "" {
				t.Fatalf("iteration %d: empty page %d", iter, i)
			}
			if n := utf8.RuneCountInString(p); n > limit && strings.Contains(p, " ") {
				t.Fatalf("iteration %d: page %d has %d runes, max %d", iter, i, n, limit)
			}
			// Greedy: the next page's first word would not have fit.
			if i+1 < len(pages) {
				next := strings.Fields(pages[i+1])[0]
				if utf8.RuneCountInString(p)+1+utf8.RuneCountInString(next) <= limit {
					t.Fatalf("iteration %d: page %d could have taken %q", iter, i, next)
				}
			}
		}
	}
}
