// Package registry discovers GGUF model files for the llama generator.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"batchd/internal/common/fsutil"
	"batchd/pkg/types"
)

// ErrModelNotFound is returned by Resolve when no model matches.
var ErrModelNotFound = errors.New("registry: model not found")

var quantRe = regexp.MustCompile(`(?i)[._-]((?:i?q\d+(?:_[a-z0-9]+)*)|f16|f32|bf16)$`)

// knownFamilies are matched, in order, against the lowercased file name.
var knownFamilies = []string{"tinyllama", "llama", "mistral", "mixtral", "phi", "qwen", "gemma"}

// LoadDir scans a directory for *.gguf files, sorted by ID. ID is the full
// filename; Quant and Family are inferred from the name.
func LoadDir(dir string) ([]types.Model, error) {
	abs, err := fsutil.Resolve(dir)
	if err != nil {
		return nil, err
	}
	if abs == "" {
		return nil, errors.New("registry: empty models dir")
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		m := describe(name)
		m.Path = filepath.Join(abs, name)
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func describe(file string) types.Model {
	stem := file[:len(file)-len(".gguf")]
	m := types.Model{ID: file, Name: stem}
	if q := quantRe.FindStringSubmatch(stem); q != nil {
		m.Quant = strings.ToUpper(q[1])
		m.Name = stem[:len(stem)-len(q[0])]
	}
	lower := strings.ToLower(stem)
	for _, f := range knownFamilies {
		if strings.Contains(lower, f) {
			m.Family = f
			break
		}
	}
	if m.Family == "tinyllama" {
		m.Family = "llama"
	}
	return m
}

// Resolve finds the model named ref: an existing file path, an ID, or a
// name without extension (case-insensitive).
func Resolve(models []types.Model, ref string) (types.Model, error) {
	if ref == "" {
		return types.Model{}, fmt.Errorf("%w: empty reference", ErrModelNotFound)
	}
	if strings.ContainsRune(ref, os.PathSeparator) || strings.HasPrefix(ref, "~") {
		p, err := fsutil.Resolve(ref)
		if err != nil {
			return types.Model{}, err
		}
		if !fsutil.PathExists(p) {
			return types.Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, p)
		}
		m := describe(filepath.Base(p))
		m.Path = p
		return m, nil
	}
	for _, m := range models {
		if strings.EqualFold(m.ID, ref) || strings.EqualFold(strings.TrimSuffix(m.ID, filepath.Ext(m.ID)), ref) {
			return m, nil
		}
	}
	return types.Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, ref)
}
