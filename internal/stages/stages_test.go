package stages

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/docpipe/internal/arbiter"
	"github.com/valpere/docpipe/internal/document"
	"github.com/valpere/docpipe/internal/engine"
	"github.com/valpere/docpipe/internal/pipeline"
	"github.com/valpere/docpipe/internal/reader"
	"github.com/valpere/docpipe/internal/refiner"
	"github.com/valpere/docpipe/internal/store"
	"github.com/valpere/docpipe/internal/translator"
	"github.com/valpere/docpipe/internal/vocab"
	"github.com/valpere/docpipe/internal/writer"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func newPipeline(t *testing.T, opts ...pipeline.Option) *pipeline.Pipeline {
	t.Helper()
	r, err := reader.New(reader.Options{Extensions: []string{".txt"}})
	require.NoError(t, err)
	p := pipeline.New(opts...)
	require.NoError(t, p.SetReader(r))
	return p
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestTranslate_GreetingWithFixedEngine(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFiles(t, "input", map[string]string{"greeting.txt": "Hello there"})

	var seen engine.Request
	stub := engine.Func(func(_ context.Context, req engine.Request) ([]string, error) {
		seen = req
		return []string{"Hallo da"}, nil
	})

	p := newPipeline(t)
	require.NoError(t, p.Add(NewTranslate(WithEngine(stub)), pipeline.Config{"task_prefix": "translate English to German: "}))
	require.NoError(t, p.Initialize(context.Background()))

	report, err := p.Run(context.Background(), "input")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	assert.Equal(t, "Hallo da", readFile(t, filepath.Join("mt_test_output", "greeting.txt")))
	assert.Equal(t, "translate English to German: ", seen.Prefix)
	assert.Equal(t, []string{"Hello there"}, seen.Units)
}

func TestTranslate_FixedEngineFromResources(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	writeFiles(t, in, map[string]string{"greeting.txt": "Hello there"})

	p := newPipeline(t)
	pipeline.Provide(p.Resources(), EngineKey, engine.Fixed("Hallo da"))
	require.NoError(t, p.Add(NewTranslate(), pipeline.Config{"output_dir": out}))
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Hallo da", readFile(t, filepath.Join(out, "greeting.txt")))
}

func TestTranslate_LexiconKeepsLineStructure(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	lexicon := filepath.Join(dir, "lexicon.yaml")
	writeFiles(t, in, map[string]string{"doc.txt": "Hello there\n\ngood day\n"})
	require.NoError(t, os.WriteFile(lexicon, []byte("Hello: Hallo\nthere: da\ngood: guten\nday: Tag\n"), 0o644))

	var units []string
	stage := NewTranslate()
	p := newPipeline(t, pipeline.WithObserver(observerFunc(func(res pipeline.DocumentResult) {
		require.NoError(t, res.Err)
	})))
	require.NoError(t, p.Add(stage, pipeline.Config{"output_dir": out, "lexicon": lexicon}))
	require.NoError(t, p.Add(&captureStage{fn: func(doc *document.Document) {
		for _, a := range doc.Annotations(UnitAnnotation) {
			v, _ := doc.Attr(a.ID, "translation")
			units = append(units, a.Text(doc)+"="+v.(string))
		}
	}}, nil))
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Hallo da\n\nguten Tag\n", readFile(t, filepath.Join(out, "doc.txt")))
	assert.Equal(t, []string{"Hello there=Hallo da", "good day=guten Tag"}, units)

	first := readFile(t, filepath.Join(out, "doc.txt"))
	_, err = p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first, readFile(t, filepath.Join(out, "doc.txt")), "reruns are byte-identical")
}

func TestTranslate_EveryLineIsAUnit(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	writeFiles(t, in, map[string]string{"doc.txt": "Hello there\n"})

	var seen []string
	stub := engine.Func(func(_ context.Context, req engine.Request) ([]string, error) {
		seen = append(seen, req.Units...)
		outs := make([]string, len(req.Units))
		for i := range outs {
			outs[i] = "X"
		}
		return outs, nil
	})
	p := newPipeline(t)
	require.NoError(t, p.Add(NewTranslate(WithEngine(stub)), pipeline.Config{"output_dir": out}))
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello there", ""}, seen)
	assert.Equal(t, "X\nX", readFile(t, filepath.Join(out, "doc.txt")))
}

func TestTranslate_SkipBlankUnits(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	writeFiles(t, in, map[string]string{"empty.txt": "\n  \n", "doc.txt": "a\n\nb"})

	var seen []string
	stub := engine.Func(func(_ context.Context, req engine.Request) ([]string, error) {
		seen = append(seen, req.Units...)
		return req.Units, nil
	})
	p := newPipeline(t)
	require.NoError(t, p.Add(NewTranslate(WithEngine(stub)), pipeline.Config{
		"output_dir":       filepath.Join(dir, "out"),
		"skip_blank_units": true,
	}))
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, "\n  \n", readFile(t, filepath.Join(dir, "out", "empty.txt")))
	assert.Equal(t, "a\n\nb", readFile(t, filepath.Join(dir, "out", "doc.txt")))
}

func TestTranslate_ConfigurationErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	tests := []struct {
		name    string
		cfg     pipeline.Config
		key     string
		wantErr error
	}{
		{name: "lexicon missing", cfg: pipeline.Config{"output_dir": filepath.Join(dir, "a")}, key: "lexicon", wantErr: pipeline.ErrMissingOption},
		{name: "empty output dir", cfg: pipeline.Config{"output_dir": ""}, key: "output_dir", wantErr: pipeline.ErrMissingOption},
		{name: "unwritable output dir", cfg: pipeline.Config{"output_dir": filepath.Join(blocker, "sub")}, key: "output_dir"},
		{name: "unknown backend", cfg: pipeline.Config{"output_dir": filepath.Join(dir, "b"), "engine": "babelfish"}, key: "engine"},
		{name: "bad threshold", cfg: pipeline.Config{"output_dir": filepath.Join(dir, "c"), "fuzzy_threshold": 2}, key: "fuzzy_threshold", wantErr: pipeline.ErrInvalidOption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t)
			require.NoError(t, p.Add(NewTranslate(), tt.cfg))
			err := p.Initialize(context.Background())

			var cerr *pipeline.ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, TranslateName, cerr.Stage)
			assert.Equal(t, tt.key, cerr.Key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestTranslate_ServiceEngineWithMemory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{"response": "Hallo da"})
	}))
	defer server.Close()

	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	writeFiles(t, in, map[string]string{"greeting.txt": "Hello there"})

	s, err := store.New(filepath.Join(dir, "memory.db"))
	require.NoError(t, err)
	defer s.Close()

	p := newPipeline(t)
	pipeline.Provide(p.Resources(), StoreKey, s)
	require.NoError(t, p.Add(NewTranslate(), pipeline.Config{
		"output_dir": filepath.Join(dir, "out"),
		"engine":     "ollama",
		"base_url":   server.URL,
	}))
	require.NoError(t, p.Initialize(context.Background()))

	_, err = p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Hallo da", readFile(t, filepath.Join(dir, "out", "greeting.txt")))

	got, ok, err := s.Lookup(context.Background(), "Hello there", "en", "de")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hallo da", got)
}

type composingArbiter struct{ candidates int }

func (c *composingArbiter) Evaluate(_ context.Context, _, _, _ string, results []translator.ServiceResult) (*arbiter.EvaluationResult, error) {
	c.candidates = len(results)
	return &arbiter.EvaluationResult{SelectedService: arbiter.Composite, IsComposite: true, CompositeText: "Hallo zusammen"}, nil
}

func TestTranslate_ArbiterChoosesAmongBackends(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"response": "Hallo da"})
	}))
	defer server.Close()

	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	writeFiles(t, in, map[string]string{"greeting.txt": "Hello there"})

	arb := &composingArbiter{}
	p := newPipeline(t)
	pipeline.Provide(p.Resources(), ArbiterKey, arbiter.Arbiter(arb))
	require.NoError(t, p.Add(NewTranslate(), pipeline.Config{
		"output_dir": filepath.Join(dir, "out"),
		"engine":     "ollama",
		"fallback":   "ollama",
		"base_url":   server.URL,
		"arbiter":    "true",
	}))
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Hallo zusammen", readFile(t, filepath.Join(dir, "out", "greeting.txt")))
	assert.Equal(t, 2, arb.candidates)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCopy_IdentityOutputs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	files := map[string]string{"a.txt": "alpha", "b.txt": "beta", "c.txt": "gamma"}
	writeFiles(t, in, files)

	p := newPipeline(t)
	require.NoError(t, p.Add(NewCopy(), pipeline.Config{"output_dir": out}))
	require.NoError(t, p.Initialize(context.Background()))

	report, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)
	for name, content := range files {
		assert.Equal(t, content, readFile(t, filepath.Join(out, name)))
	}
}

func TestCopy_SameBaseNameInSubdirectoriesFails(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	writeFiles(t, filepath.Join(in, "a"), map[string]string{"x.txt": "first"})
	writeFiles(t, filepath.Join(in, "b"), map[string]string{"x.txt": "second"})

	r, err := reader.New(reader.Options{Extensions: []string{".txt"}, Recursive: true})
	require.NoError(t, err)
	p := pipeline.New(pipeline.WithContinueOnError(true))
	require.NoError(t, p.SetReader(r))
	require.NoError(t, p.Add(NewCopy(), pipeline.Config{"output_dir": out}))
	require.NoError(t, p.Initialize(context.Background()))

	report, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Failures(), 1)

	failure := report.Failures()[0]
	assert.Equal(t, "b/x.txt", failure.Document)
	var se *pipeline.StageError
	require.ErrorAs(t, failure.Err, &se)
	assert.ErrorIs(t, failure.Err, writer.ErrNameCollision)
	assert.Equal(t, "first", readFile(t, filepath.Join(out, "x.txt")))

	// A new run starts with no claimed names.
	report, err = p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
}

func TestCopy_MissingOutputDirIsFatal(t *testing.T) {
	later := NewVocabulary()
	p := newPipeline(t)
	require.NoError(t, p.Add(NewCopy(), nil))
	require.NoError(t, p.Add(later, nil))

	err := p.Initialize(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrMissingOption)
	assert.Nil(t, later.counts, "later stages are not initialized")
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	writeFiles(t, in, map[string]string{
		"de.txt": "Das ist ein ziemlich langer deutscher Satz über das Wetter.",
		"en.txt": "This is a fairly long English sentence about the weather.",
	})

	langs := map[string]string{}
	p := newPipeline(t, pipeline.WithContinueOnError(true))
	require.NoError(t, p.Add(NewDetect(), pipeline.Config{"languages": "en,de", "expect": "de"}))
	require.NoError(t, p.Add(&captureStage{fn: func(doc *document.Document) {
		lang, _ := document.Get(doc, document.KeyLanguage)
		langs[doc.ID()] = lang
	}}, nil))
	require.NoError(t, p.Initialize(context.Background()))

	_, ok := pipeline.Lookup(p.Resources(), DetectorKey)
	assert.True(t, ok, "detector is shared")

	report, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, "en.txt", report.Failures()[0].Document)
	assert.ErrorIs(t, report.Failures()[0].Err, ErrUnexpectedLanguage)
	assert.Equal(t, map[string]string{"de.txt": "de"}, langs)
}

func TestDetect_InvalidLanguages(t *testing.T) {
	p := newPipeline(t)
	require.NoError(t, p.Add(NewDetect(), pipeline.Config{"languages": "en"}))
	err := p.Initialize(context.Background())
	var cerr *pipeline.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "languages", cerr.Key)
}

func TestRefine(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	writeFiles(t, in, map[string]string{"doc.txt": "Hello there\n\nGood day"})

	var requests []refiner.Request
	ref := refiner.Func(func(_ context.Context, req refiner.Request) (string, error) {
		requests = append(requests, req)
		return strings.ToUpper(req.Draft), nil
	})

	p := newPipeline(t)
	pipeline.Provide(p.Resources(), RefinerKey, refiner.Refiner(ref))
	require.NoError(t, p.Add(NewTranslate(WithEngine(engine.Identity())), pipeline.Config{"output_dir": filepath.Join(dir, "draft")}))
	require.NoError(t, p.Add(NewRefine(), pipeline.Config{"output_dir": filepath.Join(dir, "final")}))
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "HELLO THERE\n\nGOOD DAY", readFile(t, filepath.Join(dir, "final", "doc.txt")))
	require.Len(t, requests, 2)
	assert.Equal(t, "Good day", requests[1].Source)
}

func TestRefine_WithoutTranslationFails(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	writeFiles(t, in, map[string]string{"doc.txt": "Hello"})

	p := newPipeline(t)
	pipeline.Provide(p.Resources(), RefinerKey, refiner.Refiner(refiner.Func(func(context.Context, refiner.Request) (string, error) {
		return "", errors.New("unreachable")
	})))
	require.NoError(t, p.Add(NewRefine(), nil))
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Run(context.Background(), in)
	assert.ErrorIs(t, err, ErrNoTranslation)
}

func TestVocabulary(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	save := filepath.Join(dir, "vocab")
	writeFiles(t, in, map[string]string{
		"a.txt": "the cat sat on 12 mats",
		"b.txt": "the dog sat on 34 rugs",
	})

	stage := NewVocabulary()
	p := newPipeline(t)
	require.NoError(t, p.Add(stage, pipeline.Config{"min_frequency": "2", "save_dir": save}))
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Run(context.Background(), in)
	require.NoError(t, err)

	alphabet, ok := pipeline.Lookup(p.Resources(), VocabularyKey)
	require.True(t, ok)
	assert.Equal(t, 4+4, alphabet.Size(), "reserved tokens plus the, sat, on, 00")
	assert.NotEqual(t, vocab.UNKID, alphabet.Index("00"))
	assert.Equal(t, vocab.UNKID, alphabet.Index("cat"))

	loaded, err := vocab.Load(save, "words")
	require.NoError(t, err)
	assert.Equal(t, alphabet.Size(), loaded.Size())

	_, err = p.Run(context.Background(), in)
	require.NoError(t, err)
	again, _ := pipeline.Lookup(p.Resources(), VocabularyKey)
	assert.Equal(t, alphabet.Size(), again.Size(), "counts reset between runs")
}

func TestVocabulary_AbortedRunDoesNotLeak(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	writeFiles(t, first, map[string]string{"1.txt": "alpha", "2.txt": "beta"})
	writeFiles(t, second, map[string]string{"1.txt": "gamma"})

	stage := NewVocabulary()
	p := newPipeline(t)
	require.NoError(t, p.Add(stage, nil))
	require.NoError(t, p.Add(&captureStage{err: func(doc *document.Document) error {
		if doc.Content() == "beta" {
			return errors.New("bad document")
		}
		return nil
	}}, nil))
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Run(context.Background(), first)
	require.Error(t, err)
	_, ok := pipeline.Lookup(p.Resources(), VocabularyKey)
	assert.False(t, ok, "aborted runs publish nothing")

	_, err = p.Run(context.Background(), second)
	require.NoError(t, err)
	alphabet, ok := pipeline.Lookup(p.Resources(), VocabularyKey)
	require.True(t, ok)
	assert.Equal(t, 4+1, alphabet.Size())
	assert.NotEqual(t, vocab.UNKID, alphabet.Index("gamma"))
	assert.Equal(t, vocab.UNKID, alphabet.Index("alpha"))
	assert.Equal(t, vocab.UNKID, alphabet.Index("beta"))
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{CopyName, DetectName, RefineName, TranslateName, VocabularyName}, r.Names())

	for _, name := range r.Names() {
		stage, err := r.Build(name)
		require.NoError(t, err)
		assert.Equal(t, name, stage.Name())
		assert.NotNil(t, stage.DefaultConfig())
	}

	_, err := r.Build("nope")
	assert.ErrorIs(t, err, ErrUnknownStage)
	assert.False(t, r.Has("nope"))
}

type captureStage struct {
	fn  func(doc *document.Document)
	err func(doc *document.Document) error
}

func (c *captureStage) Name() string                   { return "capture" }
func (c *captureStage) DefaultConfig() pipeline.Config { return pipeline.Config{} }
func (c *captureStage) Initialize(context.Context, *pipeline.Resources, pipeline.Config) error {
	return nil
}

func (c *captureStage) Process(_ context.Context, doc *document.Document) error {
	if c.fn != nil {
		c.fn(doc)
	}
	if c.err != nil {
		return c.err(doc)
	}
	return nil
}

type observerFunc func(res pipeline.DocumentResult)

func (f observerFunc) RunStarted(context.Context, pipeline.RunInfo) {}
func (f observerFunc) DocumentProcessed(_ context.Context, _ pipeline.RunInfo, res pipeline.DocumentResult) {
	f(res)
}
func (f observerFunc) RunFinished(context.Context, *pipeline.Report) {}
