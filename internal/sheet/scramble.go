package sheet

import (
	"fmt"
	"math/rand"
)

const cipherAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Scrambler anonymises item ids with a substitution cipher over uppercase
// letters and digits. Other characters pass through, so identical ids always
// map to identical outputs.
type Scrambler struct {
	cipher map[rune]rune
	cache  map[string]string
}

// NewScrambler builds a cipher from seed. The same seed gives the same cipher.
func NewScrambler(seed int64) *Scrambler {
	rng := rand.New(rand.NewSource(seed))
	src := []rune(cipherAlphabet)
	perm := rng.Perm(len(src))

	cipher := make(map[rune]rune, len(src))
	for i, r := range src {
		cipher[r] = src[perm[i]]
	}
	return &Scrambler{cipher: cipher, cache: make(map[string]string)}
}

// Scramble returns the ciphered id
func (s *Scrambler) Scramble(id string) string {
	if out, ok := s.cache[id]; ok {
		return out
	}
	runes := []rune(id)
	for i, r := range runes {
		if c, ok := s.cipher[r]; ok {
			runes[i] = c
		}
	}
	out := string(runes)
	s.cache[id] = out
	return out
}

// ScrambleColumn returns a copy of t with the named column ciphered
func (s *Scrambler) ScrambleColumn(t *Table, column string) (*Table, error) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", column)
	}

	out := &Table{Header: append([]string(nil), t.Header...), Rows: make([][]string, len(t.Rows))}
	for i, rec := range t.Rows {
		row := append([]string(nil), rec...)
		row[idx] = s.Scramble(row[idx])
		out.Rows[i] = row
	}
	return out, nil
}
