// Package vocab maps tokens to integer ids for sequence models.
package vocab

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Reserved tokens occupy the first four ids of every Alphabet.
const (
	PAD = "<PAD>"
	BOS = "<BOS>"
	EOS = "<EOS>"
	UNK = "<UNK>"
)

// Reserved ids.
const (
	PadID = iota
	BOSID
	EOSID
	UNKID
)

// ErrUnknownIndex indicates an id outside the alphabet.
var ErrUnknownIndex = errors.New("unknown index")

// Alphabet is a bidirectional token/id table. A growing alphabet assigns a
// new id to every unseen token; a closed one maps unseen tokens to UNK,
// optionally retrying with the lowercased token first.
type Alphabet struct {
	mu         sync.RWMutex
	name       string
	index      map[string]int
	instances  []string
	growing    bool
	ignoreCase bool
}

// AlphabetOption configures an Alphabet.
type AlphabetOption func(*Alphabet)

// Closed creates the alphabet in closed mode.
func Closed() AlphabetOption {
	return func(a *Alphabet) { a.growing = false }
}

// CaseSensitive disables the lowercase fallback on lookup.
func CaseSensitive() AlphabetOption {
	return func(a *Alphabet) { a.ignoreCase = false }
}

// NewAlphabet creates a growing alphabet holding only the reserved tokens.
func NewAlphabet(name string, opts ...AlphabetOption) *Alphabet {
	a := &Alphabet{
		name:       name,
		index:      make(map[string]int),
		growing:    true,
		ignoreCase: true,
	}
	for _, sp := range []string{PAD, BOS, EOS, UNK} {
		a.index[sp] = len(a.instances)
		a.instances = append(a.instances, sp)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FromCounts builds a closed alphabet from token counts. Tokens are added
// by descending count, ties broken lexically, so ids are deterministic.
func FromCounts(name string, counts map[string]int, opts ...AlphabetOption) *Alphabet {
	a := NewAlphabet(name, opts...)
	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})
	for _, tok := range tokens {
		a.add(tok)
	}
	a.growing = false
	return a
}

// Name returns the alphabet name used for saving.
func (a *Alphabet) Name() string { return a.name }

// Add inserts token if absent and returns its id, regardless of mode.
func (a *Alphabet) Add(token string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.add(token)
}

func (a *Alphabet) add(token string) int {
	if id, ok := a.index[token]; ok {
		return id
	}
	id := len(a.instances)
	a.index[token] = id
	a.instances = append(a.instances, token)
	return id
}

// Index returns the id of token. In growing mode unseen tokens are added.
func (a *Alphabet) Index(token string) int {
	a.mu.RLock()
	id, ok := a.index[token]
	growing, ignoreCase := a.growing, a.ignoreCase
	if !ok && !growing && ignoreCase {
		id, ok = a.index[strings.ToLower(token)]
	}
	a.mu.RUnlock()

	if ok {
		return id
	}
	if growing {
		return a.Add(token)
	}
	return UNKID
}

// Instance returns the token for id.
func (a *Alphabet) Instance(id int) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if id < 0 || id >= len(a.instances) {
		return "", fmt.Errorf("%w: %d", ErrUnknownIndex, id)
	}
	return a.instances[id], nil
}

// Size returns the number of tokens, reserved ones included.
func (a *Alphabet) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.instances)
}

// Close stops the alphabet from growing.
func (a *Alphabet) Close() {
	a.mu.Lock()
	a.growing = false
	a.mu.Unlock()
}

// Open lets the alphabet grow again.
func (a *Alphabet) Open() {
	a.mu.Lock()
	a.growing = true
	a.mu.Unlock()
}

// Growing reports whether unseen tokens are added on lookup.
func (a *Alphabet) Growing() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.growing
}

// IsSpecial reports whether id is one of the reserved ids.
func IsSpecial(id int) bool { return id >= PadID && id <= UNKID }

type alphabetJSON struct {
	Instance2Index map[string]int `json:"instance2index"`
	Instances      []string       `json:"instances"`
}

// MarshalJSON implements json.Marshaler.
func (a *Alphabet) MarshalJSON() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return json.Marshal(alphabetJSON{Instance2Index: a.index, Instances: a.instances})
}

// Save writes the alphabet to dir/<name>.json, creating dir if needed. An
// empty name uses the alphabet's own name.
func (a *Alphabet) Save(dir, name string) (string, error) {
	if name == "" {
		name = a.name
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create alphabet directory: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal alphabet: %w", err)
	}
	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write alphabet: %w", err)
	}
	return path, nil
}

// Load reads dir/<name>.json into a closed alphabet.
func Load(dir, name string, opts ...AlphabetOption) (*Alphabet, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("read alphabet: %w", err)
	}
	var raw alphabetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse alphabet: %w", err)
	}
	if len(raw.Instances) < 4 || raw.Instances[PadID] != PAD || raw.Instances[EOSID] != EOS {
		return nil, fmt.Errorf("parse alphabet: reserved tokens missing")
	}

	a := NewAlphabet(name, opts...)
	a.instances = raw.Instances
	a.index = make(map[string]int, len(raw.Instances))
	for i, tok := range raw.Instances {
		a.index[tok] = i
	}
	a.growing = false
	return a, nil
}
