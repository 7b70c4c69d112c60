// Package document holds the unit of work that flows through a pipeline:
// an immutable identity and raw text, plus derived values that stages
// accumulate while the document is processed.
package document

import (
	"fmt"
	"path"
	"strings"
)

// Key is a typed handle for a derived-state entry. The type parameter
// removes the need for assertions at call sites.
type Key[T any] struct{ name string }

// NewKey creates a Key with the given entry name.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the entry name the key addresses.
func (k Key[T]) Name() string { return k.name }

// Well-known derived entries written by the built-in stages.
var (
	KeyLanguage           = Key[string]{"language"}
	KeyLanguageConfidence = Key[float64]{"language_confidence"}
	KeyTranslation        = Key[string]{"translation"}
	KeyRefined            = Key[string]{"refined"}
	KeyOutputPath         = Key[string]{"output_path"}
	KeyTokenCount         = Key[int]{"token_count"}
)

// Document is a single text document moving through the pipeline.
//
// ID and Content never change after New. Derived state only grows: a key
// written twice keeps the last value written.
type Document struct {
	id      string
	content string

	derived map[string]any
	order   []string

	annotations []Annotation
}

// New creates a document with the given identity and raw content.
func New(id, content string) *Document {
	return &Document{
		id:      id,
		content: content,
		derived: make(map[string]any),
	}
}

// ID returns the document identity, a slash-separated relative path.
func (d *Document) ID() string { return d.id }

// Content returns the raw text payload.
func (d *Document) Content() string { return d.content }

// BaseName returns the last element of the identity, used to name output
// files.
func (d *Document) BaseName() string {
	return path.Base(strings.ReplaceAll(d.id, "\\", "/"))
}

// Lines splits the content on newline.
func (d *Document) Lines() []string {
	return strings.Split(d.content, "\n")
}

// Set stores a derived value. Writing an existing key replaces its value.
func (d *Document) Set(key string, value any) {
	if _, ok := d.derived[key]; !ok {
		d.order = append(d.order, key)
	}
	d.derived[key] = value
}

// Get returns a derived value and whether it is present.
func (d *Document) Get(key string) (any, bool) {
	v, ok := d.derived[key]
	return v, ok
}

// Has reports whether a derived value exists for key.
func (d *Document) Has(key string) bool {
	_, ok := d.derived[key]
	return ok
}

// Keys returns derived keys in the order they were first written.
func (d *Document) Keys() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// String implements fmt.Stringer for log output.
func (d *Document) String() string {
	return fmt.Sprintf("Document(%s, %d bytes, %d derived)", d.id, len(d.content), len(d.derived))
}

// Get returns the typed derived value for key. The boolean is false when
// the entry is missing or holds a different type.
func Get[T any](d *Document, key Key[T]) (T, bool) {
	var zero T
	v, ok := d.derived[key.name]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Set stores a typed derived value.
func Set[T any](d *Document, key Key[T], value T) {
	d.Set(key.name, value)
}
