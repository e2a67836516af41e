// Package vocab maps CAPTCHA characters onto dense class indices and back.
// The alphabet is the 10 digits followed by the 26 latin letters; letters
// are folded to lower case, so encoding is case-insensitive and decoding
// always yields the lower-case form.
package vocab

import "fmt"

// Size is the number of distinct classes: digits 0-9 at indices 0-9,
// letters a-z at indices 10-35.
const Size = 36

// OutOfVocabularyError reports a character outside [0-9a-zA-Z].
type OutOfVocabularyError struct {
	Char rune
}

func (e *OutOfVocabularyError) Error() string {
	return fmt.Sprintf("character %q is outside the vocabulary", e.Char)
}

// IndexOutOfRangeError reports a class index outside [0, Size).
type IndexOutOfRangeError struct {
	Index int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("class index %d is outside [0, %d)", e.Index, Size)
}

// Encode returns the class index of r.
func Encode(r rune) (int, error) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), nil
	case r >= 'a' && r <= 'z':
		return 10 + int(r-'a'), nil
	case r >= 'A' && r <= 'Z':
		return 10 + int(r-'A'), nil
	}
	return 0, &OutOfVocabularyError{Char: r}
}

// Decode returns the character for class index idx.
func Decode(idx int) (rune, error) {
	switch {
	case idx >= 0 && idx <= 9:
		return rune('0' + idx), nil
	case idx >= 10 && idx < Size:
		return rune('a' + idx - 10), nil
	}
	return 0, &IndexOutOfRangeError{Index: idx}
}

// EncodeString encodes each character of s in order.
func EncodeString(s string) ([]int, error) {
	out := make([]int, 0, len(s))
	for _, r := range s {
		idx, err := Encode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, nil
}
