package melody

import (
	"strings"
	"unicode"
)

// Syllabify splits lyrics into singable syllables using a vowel-nucleus
// heuristic: each vowel cluster anchors one syllable and trailing consonants
// attach to the following nucleus when one exists. It is approximate but
// stable, which is what syllable-to-note assignment needs.
func Syllabify(lyrics string) []string {
	var syllables []string
	for _, word := range strings.Fields(lyrics) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
		})
		if word == "" {
			continue
		}
		syllables = append(syllables, splitWord(word)...)
	}
	return syllables
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u', 'y', 'à', 'è', 'é', 'ì', 'ò', 'ù', 'ä', 'ö', 'ü':
		return true
	}
	return false
}

func splitWord(word string) []string {
	runes := []rune(word)

	// find vowel nuclei
	var nuclei []int
	for i, r := range runes {
		if !isVowel(r) {
			continue
		}
		// vowel clusters share a nucleus
		if len(nuclei) > 0 && nuclei[len(nuclei)-1] == i-1 {
			nuclei[len(nuclei)-1] = i
			continue
		}
		nuclei = append(nuclei, i)
	}
	if len(nuclei) <= 1 {
		return []string{word}
	}

	var parts []string
	start := 0
	for i := 0; i < len(nuclei)-1; i++ {
		// split halfway through the consonant run between nuclei
		gapStart := nuclei[i] + 1
		gapEnd := nuclei[i+1]
		cut := gapStart + (gapEnd-gapStart)/2
		if cut <= start {
			cut = start + 1
		}
		parts = append(parts, string(runes[start:cut]))
		start = cut
	}
	parts = append(parts, string(runes[start:]))
	return parts
}

// AssignSyllables distributes lyric syllables across notes in order. When
// there are more notes than syllables the final syllable is sustained; extra
// syllables beyond the note count are dropped.
func AssignSyllables(m *Melody, lyrics string) {
	if m == nil || len(m.Notes) == 0 {
		return
	}
	syllables := Syllabify(lyrics)
	if len(syllables) == 0 {
		return
	}
	m.Sort()
	for i := range m.Notes {
		if i < len(syllables) {
			m.Notes[i].Syllable = syllables[i]
		} else {
			// sustain the last syllable as a melisma
			m.Notes[i].Syllable = "-"
		}
	}
}
