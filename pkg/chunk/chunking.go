package chunk

import (
	"unicode"
	"unicode/utf8"
)

// Chunk is a piece of a larger text. Start and End are character (rune) offsets into the
// original text, End exclusive.
type Chunk struct {
	Text  string
	Start int
	End   int
}

type word struct {
	byteStart, byteEnd int
	runeStart, runeEnd int
}

func splitWords(text string) []word {
	words := []word{}
	inWord := false
	var current word
	runeIdx := 0
	for byteIdx, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				current.byteEnd = byteIdx
				current.runeEnd = runeIdx
				words = append(words, current)
				inWord = false
			}
		} else if !inWord {
			current = word{byteStart: byteIdx, runeStart: runeIdx}
			inWord = true
		}
		runeIdx++
	}
	if inWord {
		current.byteEnd = len(text)
		current.runeEnd = runeIdx
		words = append(words, current)
	}
	return words
}

// Split cuts text into chunks of at most maxSize characters without splitting words.
// Consecutive chunks share up to overlap characters of whole words. A word longer than
// maxSize becomes a chunk of its own.
func Split(text string, maxSize, overlap int) []Chunk {
	words := splitWords(text)
	if len(words) == 0 {
		return []Chunk{}
	}
	if maxSize <= 0 {
		maxSize = utf8.RuneCountInString(text)
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = 0
	}

	chunks := []Chunk{}
	first := 0
	for first < len(words) {
		last := first
		for last+1 < len(words) && words[last+1].runeEnd-words[first].runeStart <= maxSize {
			last++
		}

		chunks = append(chunks, Chunk{
			Text:  text[words[first].byteStart:words[last].byteEnd],
			Start: words[first].runeStart,
			End:   words[last].runeEnd,
		})

		if last == len(words)-1 {
			break
		}

		// step back over whole words that fit in the overlap
		next := last + 1
		for next-1 > first && words[last].runeEnd-words[next-1].runeStart <= overlap {
			next--
		}
		first = next
	}

	return chunks
}
