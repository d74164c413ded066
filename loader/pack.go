// Package loader reads and writes the quantized weight packs consumed by the
// decode engine.
//
// A pack is a directory holding meta.json and the three int8 projection
// matrices, either as one flat weights_int8.bin (q, then k, then v, each
// row-major dim×dim) or as w_q_int8.npy, w_k_int8.npy and w_v_int8.npy.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sarchlab/npusim/kernels"
	"github.com/sarchlab/npusim/simerr"
)

// File names inside a pack directory.
const (
	MetaFile   = "meta.json"
	FlatFile   = "weights_int8.bin"
	QueryFile  = "w_q_int8.npy"
	KeyFile    = "w_k_int8.npy"
	ValueFile  = "w_v_int8.npy"
	FormatFlat = "bin"
	FormatNpy  = "npy"
)

// Meta is the pack descriptor stored in meta.json.
type Meta struct {
	Dim          int     `json:"dim"`
	DequantScale float64 `json:"dequant_scale"`
	Seed         *int64  `json:"seed,omitempty"`
	Format       string  `json:"format,omitempty"`
}

// WeightSet holds the query, key and value projections of one pack and
// their shared dequantization scale. It is immutable once loaded.
type WeightSet struct {
	Dim          int
	WQ, WK, WV   *kernels.Tensor[int8]
	DequantScale float32
}

// Validate checks that all three matrices are present and dim×dim and that
// the scale is a finite non-negative number.
func (ws *WeightSet) Validate() error {
	if ws.Dim <= 0 {
		return fmt.Errorf("dim must be positive, got %d", ws.Dim)
	}
	for name, w := range map[string]*kernels.Tensor[int8]{"w_q": ws.WQ, "w_k": ws.WK, "w_v": ws.WV} {
		if w == nil {
			return fmt.Errorf("%s is missing", name)
		}
		if !kernels.SameShape(w.Shape, []int{ws.Dim, ws.Dim}) {
			return simerr.ShapeMismatch("load",
				"%s shape %v, expected [%d %d]", name, w.Shape, ws.Dim, ws.Dim)
		}
	}
	s := float64(ws.DequantScale)
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		return fmt.Errorf("dequant_scale must be finite and non-negative, got %v", s)
	}
	return nil
}

// CheckDim fails with a configuration mismatch when the pack dimension
// differs from the engine dimension.
func (ws *WeightSet) CheckDim(dim int) error {
	if ws.Dim != dim {
		return simerr.New(simerr.KindConfigMismatch, "load",
			"pack dim mismatch: pack %d, engine %d", ws.Dim, dim)
	}
	return nil
}

// LoadMeta reads the pack descriptor.
func LoadMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read pack descriptor: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse pack descriptor: %w", err)
	}
	return &meta, nil
}

// Load reads a pack directory. The npy layout is used when the three .npy
// files are present, the flat binary otherwise.
func Load(dir string) (*WeightSet, error) {
	meta, err := LoadMeta(dir)
	if err != nil {
		return nil, err
	}

	ws := &WeightSet{Dim: meta.Dim, DequantScale: float32(meta.DequantScale)}
	if hasNpy(dir) {
		err = loadNpy(dir, ws)
	} else {
		err = loadFlat(dir, ws)
	}
	if err != nil {
		return nil, err
	}

	if err := ws.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pack %s: %w", dir, err)
	}
	return ws, nil
}

func hasNpy(dir string) bool {
	for _, name := range []string{QueryFile, KeyFile, ValueFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

func loadNpy(dir string, ws *WeightSet) error {
	targets := []struct {
		name string
		dst  **kernels.Tensor[int8]
	}{
		{QueryFile, &ws.WQ},
		{KeyFile, &ws.WK},
		{ValueFile, &ws.WV},
	}
	for _, t := range targets {
		w, err := ReadNpyFile(filepath.Join(dir, t.name))
		if err != nil {
			return err
		}
		*t.dst = w
	}
	return nil
}

func loadFlat(dir string, ws *WeightSet) error {
	if ws.Dim <= 0 {
		return fmt.Errorf("dim must be positive, got %d", ws.Dim)
	}
	data, err := os.ReadFile(filepath.Join(dir, FlatFile))
	if err != nil {
		return fmt.Errorf("failed to read weights: %w", err)
	}

	n := ws.Dim * ws.Dim
	if len(data) != 3*n {
		return simerr.ShapeMismatch("load",
			"%s holds %d bytes, expected %d for dim %d", FlatFile, len(data), 3*n, ws.Dim)
	}

	mats := make([]*kernels.Tensor[int8], 3)
	for m := range mats {
		w := kernels.New[int8](ws.Dim, ws.Dim)
		for i := range w.Data {
			w.Data[i] = int8(data[m*n+i])
		}
		mats[m] = w
	}
	ws.WQ, ws.WK, ws.WV = mats[0], mats[1], mats[2]
	return nil
}

// Save writes ws as a flat-binary pack into dir, creating it if needed.
func Save(dir string, ws *WeightSet) error {
	return save(dir, ws, FormatFlat)
}

// SaveNpy writes ws as an npy pack into dir, creating it if needed.
func SaveNpy(dir string, ws *WeightSet) error {
	return save(dir, ws, FormatNpy)
}

func save(dir string, ws *WeightSet, format string) error {
	if err := ws.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create pack directory: %w", err)
	}

	var err error
	switch format {
	case FormatNpy:
		err = errors.Join(
			WriteNpyFile(filepath.Join(dir, QueryFile), ws.WQ),
			WriteNpyFile(filepath.Join(dir, KeyFile), ws.WK),
			WriteNpyFile(filepath.Join(dir, ValueFile), ws.WV),
		)
	default:
		buf := make([]byte, 0, 3*ws.Dim*ws.Dim)
		for _, w := range []*kernels.Tensor[int8]{ws.WQ, ws.WK, ws.WV} {
			for _, v := range w.Data {
				buf = append(buf, byte(v))
			}
		}
		err = os.WriteFile(filepath.Join(dir, FlatFile), buf, 0o644)
	}
	if err != nil {
		return fmt.Errorf("failed to write weights: %w", err)
	}

	meta := Meta{
		Dim:          ws.Dim,
		DequantScale: float64(ws.DequantScale),
		Format:       format,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode pack descriptor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write pack descriptor: %w", err)
	}
	return nil
}
