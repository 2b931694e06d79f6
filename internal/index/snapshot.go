package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// snapshotMagic identifies an index snapshot file.
var snapshotMagic = [4]byte{'R', 'G', 'I', 'X'}

const snapshotVersion uint32 = 1

// ErrCorruptSnapshot is returned when a snapshot cannot be decoded.
var ErrCorruptSnapshot = errors.New("index: corrupt snapshot")

// MarshalBinary encodes the index as: magic, version(uint32), dim(uint32),
// n(uint32), then for each document textLen(uint32), text bytes and
// dim little-endian float32 values. Document IDs are implied by position.
func (f *Flat) MarshalBinary() ([]byte, error) {
	size := 16
	for _, d := range f.docs {
		size += 4 + len(d.Text) + 4*f.dim
	}
	out := make([]byte, 0, size)
	out = append(out, snapshotMagic[:]...)
	out = binary.LittleEndian.AppendUint32(out, snapshotVersion)
	out = binary.LittleEndian.AppendUint32(out, uint32(f.dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(f.docs)))
	for i, d := range f.docs {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(d.Text)))
		out = append(out, d.Text...)
		for _, v := range f.vecs[i] {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out, nil
}

// UnmarshalFlat decodes a snapshot produced by MarshalBinary. The snapshot
// must have been built for dimension dim.
func UnmarshalFlat(data []byte, dim int) (*Flat, error) {
	r := reader{data: data}
	var magic [4]byte
	copy(magic[:], r.bytes(4))
	if r.err != nil || magic != snapshotMagic {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptSnapshot)
	}
	if v := r.u32(); v != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, v)
	}
	gotDim := int(r.u32())
	n := int(r.u32())
	if r.err != nil {
		return nil, r.err
	}
	if gotDim != dim {
		return nil, fmt.Errorf("%w: snapshot has %d dimensions, want %d", ErrDimensionMismatch, gotDim, dim)
	}
	// Each document needs at least a length prefix and its vector.
	if n < 0 || uint64(n)*uint64(4+4*dim) > uint64(len(data)-r.off) {
		return nil, fmt.Errorf("%w: header claims %d documents", ErrCorruptSnapshot, n)
	}

	b, err := NewBuilder(dim)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, n)
	vecs := make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		textLen := int(r.u32())
		text := string(r.bytes(textLen))
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(r.u32())
		}
		if r.err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", ErrCorruptSnapshot, i, r.err)
		}
		texts = append(texts, text)
		vecs = append(vecs, vec)
	}
	if err := b.Add(vecs, texts); err != nil {
		return nil, err
	}
	return b.Seal(), nil
}

// WriteSnapshot encodes f to path, replacing any existing file atomically.
func WriteSnapshot(path string, f *Flat) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("index: create snapshot dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("index: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("index: install snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string, dim int) (*Flat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("index: read snapshot: %w", err)
	}
	return UnmarshalFlat(data, dim)
}

// reader is a sticky-error little-endian decoder.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: truncated", ErrCorruptSnapshot)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
