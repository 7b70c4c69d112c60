package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservedTokens(t *testing.T) {
	a := NewAlphabet("words")
	assert.Equal(t, 4, a.Size())
	for id, want := range []string{PAD, BOS, EOS, UNK} {
		got, err := a.Instance(id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, id, a.Index(want))
	}
}

func TestGrowingAndClosed(t *testing.T) {
	a := NewAlphabet("words")
	hello := a.Index("Hello")
	assert.Equal(t, 4, hello)
	assert.Equal(t, hello, a.Index("Hello"))

	a.Close()
	assert.False(t, a.Growing())
	assert.Equal(t, UNKID, a.Index("unseen"))
	assert.Equal(t, 5, a.Size())

	a.Add("world")
	assert.Equal(t, UNKID, a.Index("WORLD2"))
	assert.Equal(t, 5, a.Index("WORLD"), "closed lookup falls back to lowercase")

	a.Open()
	assert.Equal(t, 6, a.Index("new"))
}

func TestCaseSensitive(t *testing.T) {
	a := NewAlphabet("w", Closed(), CaseSensitive())
	a.Add("world")
	assert.Equal(t, UNKID, a.Index("World"))
}

func TestInstanceOutOfRange(t *testing.T) {
	a := NewAlphabet("w")
	_, err := a.Instance(99)
	assert.ErrorIs(t, err, ErrUnknownIndex)
}

func TestFromCountsIsDeterministic(t *testing.T) {
	a := FromCounts("w", map[string]int{"b": 2, "a": 2, "c": 5})
	assert.False(t, a.Growing())
	assert.Equal(t, 4, a.Index("c"))
	assert.Equal(t, 5, a.Index("a"))
	assert.Equal(t, 6, a.Index("b"))
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	a := NewAlphabet("words")
	a.Add("hallo")
	a.Add("da")

	path, err := a.Save(dir, "")
	require.NoError(t, err)
	assert.FileExists(t, path)

	b, err := Load(dir, "words")
	require.NoError(t, err)
	assert.False(t, b.Growing())
	assert.Equal(t, a.Size(), b.Size())
	assert.Equal(t, 5, b.Index("da"))
}

func TestEncodeBatchLeftPads(t *testing.T) {
	a := NewAlphabet("w")
	b := EncodeBatch(a, []string{"a b c", "d"}, EOSID, nil)

	require.Equal(t, 4, b.Width())
	assert.Equal(t, []int{4, 5, 6, EOSID}, b.IDs[0])
	assert.Equal(t, []int{EOSID, EOSID, 7, EOSID}, b.IDs[1])
	assert.Equal(t, []int{1, 1, 1, 1}, b.Mask[0])
	assert.Equal(t, []int{0, 0, 1, 1}, b.Mask[1])
}

func TestDecodeSkipsSpecialTokens(t *testing.T) {
	a := NewAlphabet("w")
	ids := Encode(a, "Hallo da", nil)
	ids = append([]int{PadID, PadID}, ids...)

	assert.Equal(t, "Hallo da", Decode(a, ids, true))
	assert.Equal(t, "<PAD> <PAD> Hallo da <EOS>", Decode(a, ids, false))
	assert.Equal(t, "", Decode(a, []int{EOSID, 42}, true))
}

func TestNormalizeDigits(t *testing.T) {
	assert.Equal(t, "00.00.0000", NormalizeDigits("12.05.2024"))
	assert.Equal(t, "abc", NormalizeDigits("abc"))
}
