package embed

import "strings"

// Chunk splits text into windows of at most maxWords whitespace-separated
// words, each starting overlap words before the end of the previous one.
// Text within the limit is returned unchanged as a single chunk. An overlap
// of maxWords or more is clamped to maxWords-1 so windows always advance.
func Chunk(text string, maxWords, overlap int) []string {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	overlap = min(max(overlap, 0), maxWords-1)

	words := strings.Fields(text)
	if len(words) <= maxWords {
		return []string{text}
	}

	var chunks []string
	for start := 0; ; start += maxWords - overlap {
		end := min(start+maxWords, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			return chunks
		}
	}
}
