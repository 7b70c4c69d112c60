// Package reader supplies documents from a directory tree.
package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/unicode/norm"

	"github.com/valpere/docpipe/internal/document"
	"github.com/valpere/docpipe/internal/markdown"
	"github.com/valpere/docpipe/internal/pipeline"
)

var (
	// ErrInvalidUTF8 indicates a file that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid UTF-8")

	// ErrNotDirectory indicates a source that is not a directory.
	ErrNotDirectory = errors.New("source is not a directory")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options configures a Directory reader.
type Options struct {
	// Extensions limits which files are read, e.g. ".txt". Matching is
	// case-insensitive. Empty means every regular file.
	Extensions []string

	// Recursive descends into subdirectories.
	Recursive bool

	// ExcludeDirs names directories that are never entered.
	ExcludeDirs []string

	// Encoding is a WHATWG encoding label. Empty means UTF-8.
	Encoding string

	// Normalize applies Unicode NFC normalisation to content.
	Normalize bool

	// Markdown converts .md and .markdown files to plain text.
	Markdown bool
}

// Directory reads every matching file under a source directory, in lexical
// order. Document identity is the slash-separated path relative to the
// source.
type Directory struct {
	opts    Options
	decoder *encoding.Decoder
}

// New creates a Directory reader.
func New(opts Options) (*Directory, error) {
	d := &Directory{opts: opts}
	label := strings.ToLower(strings.TrimSpace(opts.Encoding))
	if label != "" && label != "utf-8" && label != "utf8" {
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, fmt.Errorf("unknown encoding %q: %w", opts.Encoding, err)
		}
		d.decoder = enc.NewDecoder()
	}
	d.opts.Extensions = make([]string, 0, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		d.opts.Extensions = append(d.opts.Extensions, ext)
	}
	return d, nil
}

// Read implements pipeline.Reader. Nothing is touched on disk until the
// sequence is iterated. A missing source is reported once as a
// *pipeline.ReaderError; unreadable files are reported individually and the
// walk continues.
func (d *Directory) Read(ctx context.Context, source string) iter.Seq2[*document.Document, error] {
	return func(yield func(*document.Document, error) bool) {
		info, err := os.Stat(source)
		if err != nil {
			yield(nil, &pipeline.ReaderError{Source: source, Err: err})
			return
		}
		if !info.IsDir() {
			yield(nil, &pipeline.ReaderError{Source: source, Err: ErrNotDirectory})
			return
		}

		stop := errors.New("stop")
		walkErr := filepath.WalkDir(source, func(path string, entry fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			rel, relErr := filepath.Rel(source, path)
			if relErr != nil {
				rel = path
			}
			id := filepath.ToSlash(rel)

			if err != nil {
				if !yield(nil, &pipeline.ReaderError{Source: source, Document: id, Err: err}) {
					return stop
				}
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if entry.IsDir() {
				if path == source {
					return nil
				}
				if !d.opts.Recursive || slices.Contains(d.opts.ExcludeDirs, entry.Name()) {
					return fs.SkipDir
				}
				return nil
			}
			if !entry.Type().IsRegular() || !d.accepts(entry.Name()) {
				return nil
			}

			content, err := d.load(path)
			if err != nil {
				if !yield(nil, &pipeline.ReaderError{Source: source, Document: id, Err: err}) {
					return stop
				}
				return nil
			}
			if !yield(document.New(id, content), nil) {
				return stop
			}
			return nil
		})

		if walkErr != nil && !errors.Is(walkErr, stop) {
			yield(nil, &pipeline.ReaderError{Source: source, Err: walkErr})
		}
	}
}

func (d *Directory) accepts(name string) bool {
	if len(d.opts.Extensions) == 0 {
		return true
	}
	return slices.Contains(d.opts.Extensions, strings.ToLower(filepath.Ext(name)))
}

func (d *Directory) load(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var text string
	if d.decoder != nil {
		out, err := d.decoder.Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", d.opts.Encoding, err)
		}
		text = string(out)
	} else {
		raw = bytes.TrimPrefix(raw, utf8BOM)
		if !utf8.Valid(raw) {
			return "", ErrInvalidUTF8
		}
		text = string(raw)
	}

	if d.opts.Markdown && isMarkdown(path) {
		text = markdown.ToPlainText([]byte(text))
	}
	if d.opts.Normalize {
		text = norm.NFC.String(text)
	}
	return text, nil
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	default:
		return false
	}
}

// Filter wraps a reader and drops documents for which keep returns false.
// Errors are always passed through.
func Filter(r pipeline.Reader, keep func(id string) bool) pipeline.Reader {
	return pipeline.ReaderFunc(func(ctx context.Context, source string) iter.Seq2[*document.Document, error] {
		return func(yield func(*document.Document, error) bool) {
			for doc, err := range r.Read(ctx, source) {
				if err == nil && doc != nil && !keep(doc.ID()) {
					continue
				}
				if !yield(doc, err) {
					return
				}
			}
		}
	})
}
