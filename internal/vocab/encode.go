package vocab

import (
	"regexp"
	"strings"
)

// Tokenizer splits text into tokens.
type Tokenizer func(string) []string

// Whitespace splits on Unicode white space.
func Whitespace(s string) []string { return strings.Fields(s) }

// Batch is a left-padded batch of id sequences.
type Batch struct {
	// IDs holds one row per input, all of equal length.
	IDs [][]int

	// Mask is 1 for real tokens and 0 for padding.
	Mask [][]int

	// Prefix is the number of leading real tokens in every row that come
	// from a shared task prefix rather than the input itself.
	Prefix int
}

// Width returns the common row length.
func (b Batch) Width() int {
	if len(b.IDs) == 0 {
		return 0
	}
	return len(b.IDs[0])
}

// Encode tokenizes text, maps each token through a and appends EOS.
func Encode(a *Alphabet, text string, tok Tokenizer) []int {
	if tok == nil {
		tok = Whitespace
	}
	tokens := tok(text)
	ids := make([]int, 0, len(tokens)+1)
	for _, t := range tokens {
		ids = append(ids, a.Index(t))
	}
	return append(ids, EOSID)
}

// EncodeBatch encodes every text and left-pads the rows with pad so they
// share one width and every row ends at the last column.
func EncodeBatch(a *Alphabet, texts []string, pad int, tok Tokenizer) Batch {
	rows := make([][]int, len(texts))
	width := 0
	for i, text := range texts {
		rows[i] = Encode(a, text, tok)
		width = max(width, len(rows[i]))
	}

	b := Batch{IDs: make([][]int, len(rows)), Mask: make([][]int, len(rows))}
	for i, row := range rows {
		ids := make([]int, width)
		mask := make([]int, width)
		off := width - len(row)
		for j := 0; j < off; j++ {
			ids[j] = pad
		}
		for j, id := range row {
			ids[off+j] = id
			mask[off+j] = 1
		}
		b.IDs[i] = ids
		b.Mask[i] = mask
	}
	return b
}

// Decode maps ids back to tokens joined by single spaces. With skipSpecial
// the reserved tokens are dropped. Unknown ids decode as UNK.
func Decode(a *Alphabet, ids []int, skipSpecial bool) string {
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		if skipSpecial && IsSpecial(id) {
			continue
		}
		t, err := a.Instance(id)
		if err != nil {
			t = UNK
			if skipSpecial {
				continue
			}
		}
		tokens = append(tokens, t)
	}
	return strings.Join(tokens, " ")
}

var digitRe = regexp.MustCompile(`\d`)

// NormalizeDigits replaces every decimal digit with '0', so numbers of the
// same shape share one vocabulary entry.
func NormalizeDigits(s string) string {
	return digitRe.ReplaceAllString(s, "0")
}
