package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valpere/docpipe/internal/vocab"
)

// Lexicon is a word-for-word Generator. Source words map to one or more
// target words; words without an entry are dropped. The task prefix steers
// model generators and is skipped here.
type Lexicon struct {
	source *vocab.Alphabet
	target *vocab.Alphabet
	table  map[int][]int
}

// NewLexicon builds source and target alphabets from entries. Ids are
// assigned in lexical order so equal tables produce equal alphabets.
func NewLexicon(entries map[string]string) *Lexicon {
	srcCounts := make(map[string]int, len(entries))
	tgtCounts := make(map[string]int)
	for src, tgt := range entries {
		srcCounts[src] = 1
		for _, w := range strings.Fields(tgt) {
			tgtCounts[w] = 1
		}
	}

	l := &Lexicon{
		source: vocab.FromCounts("source", srcCounts),
		target: vocab.FromCounts("target", tgtCounts),
		table:  make(map[int][]int, len(entries)),
	}
	for src, tgt := range entries {
		words := strings.Fields(tgt)
		ids := make([]int, len(words))
		for i, w := range words {
			ids[i] = l.target.Index(w)
		}
		l.table[l.source.Index(src)] = ids
	}
	return l
}

// NewLexiconEngine returns a Seq2Seq engine driven by a Lexicon.
func NewLexiconEngine(entries map[string]string) *Seq2Seq {
	l := NewLexicon(entries)
	return NewSeq2Seq("lexicon", l.source, l.target, l)
}

// Generate maps every real input token of a row through the table and ends
// the row with EOS. Padding, prefix tokens and reserved ids are skipped.
func (l *Lexicon) Generate(ctx context.Context, batch vocab.Batch) ([][]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]int, len(batch.IDs))
	for i, row := range batch.IDs {
		var ids []int
		prefix := batch.Prefix
		for j, id := range row {
			if batch.Mask[i][j] == 0 {
				continue
			}
			if prefix > 0 {
				prefix--
				continue
			}
			if vocab.IsSpecial(id) {
				continue
			}
			ids = append(ids, l.table[id]...)
		}
		out[i] = append(ids, vocab.EOSID)
	}
	return out, nil
}

// LoadLexicon reads a YAML (or JSON) mapping of source word to target words.
func LoadLexicon(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	entries := make(map[string]string)
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return entries, nil
}
