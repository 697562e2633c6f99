package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
)

// DirSaver writes files into a directory, creating it on first use.
type DirSaver struct {
	Dir string
}

func (s DirSaver) Save(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	return os.WriteFile(filepath.Join(s.Dir, filepath.Base(name)), data, 0o644)
}

// ZipSaver streams every saved file into one deflated archive.
type ZipSaver struct {
	mu sync.Mutex
	zw *zip.Writer
	n  int
}

func NewZipSaver(w io.Writer) *ZipSaver {
	return &ZipSaver{zw: zip.NewWriter(w)}
}

func (s *ZipSaver) Save(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.zw.CreateHeader(&zip.FileHeader{
		Name:     filepath.Base(name),
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("zip write %s: %w", name, err)
	}
	s.n++
	return nil
}

// Count returns the number of files written so far.
func (s *ZipSaver) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func (s *ZipSaver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zw.Close()
}

// MemorySaver keeps files in memory.
type MemorySaver struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMemorySaver() *MemorySaver {
	return &MemorySaver{files: make(map[string][]byte)}
}

func (s *MemorySaver) Save(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = append([]byte(nil), data...)
	return nil
}

func (s *MemorySaver) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	return data, ok
}

func (s *MemorySaver) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
