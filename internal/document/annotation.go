package document

import (
	"errors"
	"fmt"
)

var (
	// ErrSpanOutOfRange indicates an annotation span outside the content.
	ErrSpanOutOfRange = errors.New("span out of range")

	// ErrAnnotationNotFound indicates an unknown annotation id.
	ErrAnnotationNotFound = errors.New("annotation not found")
)

// Annotation marks the byte range [Begin, End) of the content with a kind
// such as "sentence" and carries free-form attributes.
type Annotation struct {
	ID    int
	Kind  string
	Begin int
	End   int
	Attrs map[string]any
}

// Text returns the covered slice of content.
func (a Annotation) Text(d *Document) string {
	return d.content[a.Begin:a.End]
}

// AddAnnotation records a span over the content and returns its id.
// Ids are assigned sequentially starting at zero.
func (d *Document) AddAnnotation(kind string, begin, end int) (int, error) {
	if begin < 0 || end < begin || end > len(d.content) {
		return 0, fmt.Errorf("%w: [%d,%d) over %d bytes", ErrSpanOutOfRange, begin, end, len(d.content))
	}
	id := len(d.annotations)
	d.annotations = append(d.annotations, Annotation{
		ID:    id,
		Kind:  kind,
		Begin: begin,
		End:   end,
	})
	return id, nil
}

// Annotations returns annotations of the given kind ordered by Begin, then
// by insertion. An empty kind selects every annotation.
func (d *Document) Annotations(kind string) []Annotation {
	var out []Annotation
	for _, a := range d.annotations {
		if kind == "" || a.Kind == kind {
			out = append(out, a)
		}
	}
	// Insertion sort keeps equal Begin values stable; span lists are short.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Begin < out[j-1].Begin; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// SetAttr sets an attribute on an annotation.
func (d *Document) SetAttr(id int, name string, value any) error {
	if id < 0 || id >= len(d.annotations) {
		return fmt.Errorf("%w: %d", ErrAnnotationNotFound, id)
	}
	a := &d.annotations[id]
	if a.Attrs == nil {
		a.Attrs = make(map[string]any)
	}
	a.Attrs[name] = value
	return nil
}

// Attr returns an attribute of an annotation.
func (d *Document) Attr(id int, name string) (any, bool) {
	if id < 0 || id >= len(d.annotations) {
		return nil, false
	}
	v, ok := d.annotations[id].Attrs[name]
	return v, ok
}
