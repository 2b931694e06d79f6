package index

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlat(t *testing.T, dim int, vecs [][]float32, texts []string) *Flat {
	t.Helper()
	b, err := NewBuilder(dim)
	require.NoError(t, err)
	require.NoError(t, b.Add(vecs, texts))
	return b.Seal()
}

func ids(hits []Hit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Document.ID
	}
	return out
}

func TestBuilder_AssignsSequentialIDs(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder(2)
	require.NoError(t, err)
	require.NoError(t, b.Add([][]float32{{0, 0}, {1, 1}}, []string{"a", "b"}))
	require.NoError(t, b.Add([][]float32{{2, 2}}, []string{"c"}))

	f := b.Seal()
	assert.Equal(t, 3, f.Size())
	assert.Equal(t, []Document{{0, "a"}, {1, "b"}, {2, "c"}}, f.Documents())
}

func TestBuilder_RejectsBadBatches(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder(2)
	require.NoError(t, err)

	err = b.Add([][]float32{{0, 0}}, []string{"a", "b"})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	err = b.Add([][]float32{{0, 0}, {1, 1, 1}}, []string{"a", "b"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, b.Size(), "failed batch must not be partially applied")

	b.Seal()
	assert.ErrorIs(t, b.Add([][]float32{{0, 0}}, []string{"a"}), ErrSealed)
}

func TestNewBuilder_RejectsNonPositiveDimension(t *testing.T) {
	t.Parallel()
	_, err := NewBuilder(0)
	assert.Error(t, err)
}

func TestFlat_Ordering(t *testing.T) {
	t.Parallel()

	f := newFlat(t, 2,
		[][]float32{{3, 0}, {1, 0}, {2, 0}, {0, 0}},
		[]string{"three", "one", "two", "zero"},
	)

	hits, err := f.Search(context.Background(), []float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, ids(hits))
	assert.Equal(t, []float64{0, 1, 4}, []float64{hits[0].Distance, hits[1].Distance, hits[2].Distance})
	assert.Equal(t, []string{"zero", "one", "two"}, Texts(hits))
}

func TestFlat_TiesBreakByID(t *testing.T) {
	t.Parallel()

	// All four points are equidistant from the origin.
	f := newFlat(t, 2,
		[][]float32{{0, 1}, {1, 0}, {0, -1}, {-1, 0}},
		[]string{"n", "e", "s", "w"},
	)

	hits, err := f.Search(context.Background(), []float32{0, 0}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, ids(hits))
}

func TestFlat_UnderFull(t *testing.T) {
	t.Parallel()

	f := newFlat(t, 3, [][]float32{{1, 2, 3}, {4, 5, 6}}, []string{"a", "b"})
	hits, err := f.Search(context.Background(), []float32{0, 0, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_HugeKReturnsAll(t *testing.T) {
	t.Parallel()

	f := newFlat(t, 2, [][]float32{{3, 0}, {1, 0}}, []string{"far", "near"})
	for name, s := range map[string]Searcher{"flat": f, "vptree": NewVPTree(f)} {
		hits, err := s.Search(context.Background(), []float32{0, 0}, math.MaxInt)
		require.NoError(t, err, name)
		require.Len(t, hits, 2, name)
		assert.Equal(t, "near", hits[0].Document.Text, name)
		assert.Equal(t, "far", hits[1].Document.Text, name)
	}
}

func TestFlat_Empty(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder(4)
	require.NoError(t, err)
	f := b.Seal()

	hits, err := f.Search(context.Background(), []float32{1, 2, 3, 4}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NotNil(t, hits)
}

func TestFlat_QueryDimensionMismatch(t *testing.T) {
	t.Parallel()

	f := newFlat(t, 2, [][]float32{{0, 0}}, []string{"a"})
	_, err := f.Search(context.Background(), []float32{0, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlat_Deterministic(t *testing.T) {
	t.Parallel()

	vecs, texts := randomCorpus(rand.New(rand.NewSource(7)), 200, 8)
	f := newFlat(t, 8, vecs, texts)
	q := vecs[17]

	first, err := f.Search(context.Background(), q, 5)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := f.Search(context.Background(), q, 5)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Zero(t, first[0].Distance)
}

func TestFlat_ConcurrentSearch(t *testing.T) {
	t.Parallel()

	vecs, texts := randomCorpus(rand.New(rand.NewSource(3)), 100, 4)
	f := newFlat(t, 4, vecs, texts)
	want, err := f.Search(context.Background(), vecs[0], 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.Search(context.Background(), vecs[0], 3)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestVPTree_MatchesFlat(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	vecs, texts := randomCorpus(rng, 500, 6)
	// Duplicate vectors force exact ties.
	vecs = append(vecs, vecs[10], vecs[20], vecs[10])
	texts = append(texts, "dup-10", "dup-20", "dup-10b")

	f := newFlat(t, 6, vecs, texts)
	tree := NewVPTree(f)
	assert.Equal(t, f.Size(), tree.Size())
	assert.Equal(t, 6, tree.Dimension())

	queries := append([][]float32{vecs[10], vecs[20]}, randomCorpusVectors(rng, 50, 6)...)
	for _, k := range []int{1, 3, 7, 600} {
		for _, q := range queries {
			want, err := f.Search(context.Background(), q, k)
			require.NoError(t, err)
			got, err := tree.Search(context.Background(), q, k)
			require.NoError(t, err)
			require.Equal(t, want, got, "k=%d", k)
		}
	}
}

func TestVPTree_Empty(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder(2)
	require.NoError(t, err)
	tree := NewVPTree(b.Seal())

	hits, err := tree.Search(context.Background(), []float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = tree.Search(context.Background(), []float32{0}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()

	vecs, texts := randomCorpus(rand.New(rand.NewSource(1)), 20, 5)
	texts[3] = "unicode ✓ passage"
	f := newFlat(t, 5, vecs, texts)

	path := filepath.Join(t.TempDir(), "idx", "corpus.snap")
	require.NoError(t, WriteSnapshot(path, f))

	loaded, err := ReadSnapshot(path, 5)
	require.NoError(t, err)
	assert.Equal(t, f.Documents(), loaded.Documents())

	want, err := f.Search(context.Background(), vecs[3], 4)
	require.NoError(t, err)
	got, err := loaded.Search(context.Background(), vecs[3], 4)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSnapshot_Rejects(t *testing.T) {
	t.Parallel()

	f := newFlat(t, 2, [][]float32{{1, 2}}, []string{"a"})
	data, err := f.MarshalBinary()
	require.NoError(t, err)

	_, err = UnmarshalFlat(data, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = UnmarshalFlat(data[:len(data)-2], 2)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)

	_, err = UnmarshalFlat([]byte("nope"), 2)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)

	// A bare header claiming far more documents than the file holds.
	hdr := append([]byte{}, snapshotMagic[:]...)
	hdr = binary.LittleEndian.AppendUint32(hdr, snapshotVersion)
	hdr = binary.LittleEndian.AppendUint32(hdr, 2)
	hdr = binary.LittleEndian.AppendUint32(hdr, math.MaxUint32)
	_, err = UnmarshalFlat(hdr, 2)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func randomCorpus(rng *rand.Rand, n, dim int) ([][]float32, []string) {
	vecs := randomCorpusVectors(rng, n, dim)
	texts := make([]string, n)
	for i := range texts {
		texts[i] = "doc"
	}
	return vecs, texts
}

func randomCorpusVectors(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			// Coarse grid values make distance ties common.
			v[j] = float32(rng.Intn(5))
		}
		out[i] = v
	}
	return out
}
