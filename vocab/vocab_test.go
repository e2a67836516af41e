package vocab

import (
	"errors"
	"testing"
	"unicode"
)

func TestEncodeDigits(t *testing.T) {
	for d := '0'; d <= '9'; d++ {
		idx, err := Encode(d)
		if err != nil {
			t.Fatal(err)
		}
		if idx != int(d-'0') {
			t.Errorf("Encode(%q) = %d, want %d", d, idx, d-'0')
		}
	}
}

func TestEncodeLettersCaseInsensitive(t *testing.T) {
	for c := 'a'; c <= 'z'; c++ {
		lower, err := Encode(c)
		if err != nil {
			t.Fatal(err)
		}
		upper, err := Encode(unicode.ToUpper(c))
		if err != nil {
			t.Fatal(err)
		}
		if lower != upper {
			t.Errorf("Encode(%q) = %d but Encode(%q) = %d", c, lower, unicode.ToUpper(c), upper)
		}
		if lower != 10+int(c-'a') {
			t.Errorf("Encode(%q) = %d, want %d", c, lower, 10+int(c-'a'))
		}
	}
}

func TestEncodeRejectsOutsideAlphabet(t *testing.T) {
	for _, r := range []rune{'!', ' ', '-', 'é', '\n', 0} {
		_, err := Encode(r)
		if err == nil {
			t.Fatalf("Encode(%q) succeeded, want error", r)
		}
		var oov *OutOfVocabularyError
		if !errors.As(err, &oov) {
			t.Fatalf("Encode(%q) error is %T, want *OutOfVocabularyError", r, err)
		}
		if oov.Char != r {
			t.Errorf("error reports %q, want %q", oov.Char, r)
		}
	}
}

func TestDecodeInvertsEncode(t *testing.T) {
	alphabet := "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	for _, c := range alphabet {
		idx, err := Encode(c)
		if err != nil {
			t.Fatal(err)
		}
		back, err := Decode(idx)
		if err != nil {
			t.Fatal(err)
		}
		if back != unicode.ToLower(c) {
			t.Errorf("Decode(Encode(%q)) = %q, want %q", c, back, unicode.ToLower(c))
		}
	}
}

func TestDecodeCoversAllIndices(t *testing.T) {
	seen := make(map[rune]bool)
	for idx := 0; idx < Size; idx++ {
		c, err := Decode(idx)
		if err != nil {
			t.Fatal(err)
		}
		if seen[c] {
			t.Errorf("Decode(%d) = %q already produced", idx, c)
		}
		seen[c] = true
	}
	if len(seen) != Size {
		t.Fatalf("decoded %d distinct characters, want %d", len(seen), Size)
	}
}

func TestDecodeRejectsOutOfRange(t *testing.T) {
	for _, idx := range []int{-1, Size, 100} {
		_, err := Decode(idx)
		if err == nil {
			t.Fatalf("Decode(%d) succeeded, want error", idx)
		}
		var oor *IndexOutOfRangeError
		if !errors.As(err, &oor) {
			t.Fatalf("Decode(%d) error is %T, want *IndexOutOfRangeError", idx, err)
		}
		if oor.Index != idx {
			t.Errorf("error reports %d, want %d", oor.Index, idx)
		}
	}
}

func TestEncodeString(t *testing.T) {
	got, err := EncodeString("a1B2c")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{10, 1, 11, 2, 12}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("at %d, got %d, want %d", i, got[i], want[i])
		}
	}
	if _, err := EncodeString("ab?de"); err == nil {
		t.Fatal("expected error for string with out-of-vocabulary character")
	}
}
