package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"batchd/pkg/types"
)

const defaultDir = ".batchd/runs"

// File stores each result as <dir>/<run id>.json.
type File struct {
	Dir string
}

// NewFile returns a File store rooted at dir, defaulting to .batchd/runs.
func NewFile(dir string) *File {
	if dir == "" {
		dir = defaultDir
	}
	return &File{Dir: dir}
}

func (f *File) path(id string) string { return filepath.Join(f.Dir, id+".json") }

func (f *File) Save(_ context.Context, res types.RunResult) error {
	id := res.Status.RunID
	if err := validID(id); err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("ensure results dir: %w", err)
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	tmp := f.path(id) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if err := os.Rename(tmp, f.path(id)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func (f *File) Load(_ context.Context, id string) (types.RunResult, error) {
	if err := validID(id); err != nil {
		return types.RunResult{}, err
	}
	b, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.RunResult{}, ErrNotFound
		}
		return types.RunResult{}, fmt.Errorf("read result: %w", err)
	}
	var res types.RunResult
	if err := json.Unmarshal(b, &res); err != nil {
		return types.RunResult{}, fmt.Errorf("unmarshal result %s: %w", id, err)
	}
	return res, nil
}

// List orders runs by file modification time.
func (f *File) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list results: %w", err)
	}
	type item struct {
		id  string
		mod int64
	}
	var items []item
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{id: strings.TrimSuffix(name, ".json"), mod: info.ModTime().UnixNano()})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].mod != items[j].mod {
			return items[i].mod < items[j].mod
		}
		return items[i].id < items[j].id
	})
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}

func (f *File) Close() error { return nil }
