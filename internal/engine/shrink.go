package engine

import (
	"regexp"
	"strings"
)

// slideDigestChars is roughly how much of each slide survives shrinking.
// Clipping per slide keeps topical breadth across a long deck, where a blind
// tail-truncate would drop the back half entirely.
const slideDigestChars = 320

var slideMarker = regexp.MustCompile(`\[Slide \d+\]`)

// Shrink fits source text into the model input budget. Slide-marked text gets
// a per-slide digest; everything else is tail-truncated.
func Shrink(text string, budget int) string {
	if budget <= 0 || len(text) <= budget {
		return text
	}

	locs := slideMarker.FindAllStringIndex(text, -1)
	if len(locs) < 2 {
		return strings.TrimSpace(clip(text, budget))
	}

	var b strings.Builder
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		marker := text[loc[0]:loc[1]]
		body := strings.TrimSpace(text[loc[1]:end])
		if len(body) > slideDigestChars {
			body = strings.TrimSpace(clip(body, slideDigestChars))
		}

		piece := marker + " " + body + "\n"
		if b.Len()+len(piece) > budget {
			break
		}
		b.WriteString(piece)
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return strings.TrimSpace(clip(text, budget))
	}
	return out
}
