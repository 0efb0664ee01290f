package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// lookalikes folds the digits and signs people use to dodge a word list.
var lookalikes = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e', '€': 'e',
	'1': 'i',
	'0': 'o',
	'5': 's', '$': 's',
	'7': 't',
}

// Moderator masks blocked words in chat messages before they are stored.
// A blocked word only matches as a whole word: "spam" is masked, "antispam" is not.
type Moderator struct {
	automaton *goahocorasick.Machine
	mask      rune
	log       *slog.Logger
}

// folded is a message reduced to lower case letters, with the position of each
// letter in the original message.
type folded struct {
	letters []rune
	origin  []int
}

// NewModerator builds the automaton over the folded form of words.
// Words that fold to nothing, like "..." or " ", are skipped.
func NewModerator(words []string, mask rune, log *slog.Logger) (*Moderator, error) {
	patterns := lo.FilterMap(words, func(word string, _ int) ([]rune, bool) {
		letters := fold([]rune(word)).letters
		return letters, len(letters) > 0
	})

	moderator := &Moderator{mask: mask, log: log}
	if len(patterns) == 0 {
		log.Warn("No blocked word left after folding, messages go through untouched")
		return moderator, nil
	}

	automaton := new(goahocorasick.Machine)
	if err := automaton.Build(patterns); err != nil {
		return nil, err
	}
	moderator.automaton = automaton
	log.Debug("Moderator ready", "patterns", len(patterns))
	return moderator, nil
}

// Censor returns content with every blocked word masked rune for rune, spacing
// and surrounding punctuation kept. The second value lists the distinct blocked
// words found, in order of first appearance, nil when the message is clean.
func (m *Moderator) Censor(content string) (string, []string) {
	if m == nil || m.automaton == nil {
		return content, nil
	}
	original := []rune(content)
	text := fold(original)
	if len(text.letters) == 0 {
		return content, nil
	}

	var found []string
	for _, match := range m.automaton.MultiPatternSearch(text.letters, false) {
		end := match.Pos + len(match.Word)
		if match.Pos < 0 || end > len(text.origin) {
			continue
		}
		start, stop := text.origin[match.Pos], text.origin[end-1]+1
		if !wholeWord(original, start, stop) {
			continue
		}
		for i := start; i < stop; i++ {
			original[i] = m.mask
		}
		found = append(found, string(match.Word))
	}
	if len(found) == 0 {
		return content, nil
	}
	return string(original), lo.Uniq(found)
}

func fold(input []rune) folded {
	text := folded{
		letters: make([]rune, 0, len(input)),
		origin:  make([]int, 0, len(input)),
	}
	for i, r := range input {
		if plain, ok := lookalikes[r]; ok {
			r = plain
		}
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		text.letters = append(text.letters, unicode.ToLower(r))
		text.origin = append(text.origin, i)
	}
	return text
}

// wholeWord reports whether original[start:stop] is not glued to other letters.
func wholeWord(original []rune, start, stop int) bool {
	if start > 0 && unicode.IsLetter(original[start-1]) {
		return false
	}
	return stop >= len(original) || !unicode.IsLetter(original[stop])
}
