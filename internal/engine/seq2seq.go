package engine

import (
	"context"
	"fmt"

	"github.com/valpere/docpipe/internal/vocab"
)

// Generator produces one target id sequence per row of a left-padded batch.
// Generation must be deterministic.
type Generator interface {
	Generate(ctx context.Context, batch vocab.Batch) ([][]int, error)
}

// Seq2Seq encodes prefixed units with a source alphabet, generates with a
// Generator and decodes with a target alphabet, dropping reserved tokens.
// Rows are left-padded with EOS.
type Seq2Seq struct {
	name      string
	source    *vocab.Alphabet
	target    *vocab.Alphabet
	generator Generator
	tokenize  vocab.Tokenizer
}

// NewSeq2Seq creates an engine over closed alphabets. The alphabets are
// closed here if they are still growing.
func NewSeq2Seq(name string, source, target *vocab.Alphabet, gen Generator) *Seq2Seq {
	source.Close()
	target.Close()
	return &Seq2Seq{
		name:      name,
		source:    source,
		target:    target,
		generator: gen,
		tokenize:  vocab.Whitespace,
	}
}

func (s *Seq2Seq) Name() string { return s.name }

func (s *Seq2Seq) Translate(ctx context.Context, req Request) ([]string, error) {
	if len(req.Units) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(req.Units))
	for i, unit := range req.Units {
		inputs[i] = req.Prefix + unit
	}
	batch := vocab.EncodeBatch(s.source, inputs, vocab.EOSID, s.tokenize)
	batch.Prefix = len(s.tokenize(req.Prefix))

	ids, err := s.generator.Generate(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	out := make([]string, len(ids))
	for i, row := range ids {
		out[i] = vocab.Decode(s.target, row, true)
	}
	if err := CheckOutputs(req, out); err != nil {
		return nil, err
	}
	return out, nil
}
