package ids

import (
	"crypto/rand"
	"fmt"
)

// Alphabet is the set of visually distinguishable characters used for thread
// and message IDs. Easily-confused glyphs (O/0 lookalikes, l/1, etc.) are
// excluded so IDs survive being read aloud or retyped by staff.
const Alphabet = "CDEHKMPRTUWXY012458"

// Length is the fixed length of generated IDs.
const Length = 10

// rejection threshold: largest multiple of len(Alphabet) below 256, keeps
// the character distribution uniform
var limit = byte(256 / len(Alphabet) * len(Alphabet))

var randRead = rand.Read

// New returns a fresh random candidate ID. Uniqueness is the caller's
// responsibility: the stores check each candidate against existing records
// and regenerate on collision as part of their creation paths.
func New() string {
	out := make([]byte, 0, Length)
	buf := make([]byte, 2*Length)
	for len(out) < Length {
		if _, err := randRead(buf); err != nil {
			panic(fmt.Sprintf("ids: crypto/rand failed: %v", err))
		}
		for _, c := range buf {
			if c >= limit {
				continue
			}
			out = append(out, Alphabet[int(c)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out)
}
