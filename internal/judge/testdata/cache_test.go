package testdata

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"vjudge/internal/common/storage"
)

// memStorage serves packs from memory and counts fetches.
type memStorage struct {
	objects map[string][]byte
	fetches int
}

func (m *memStorage) GetObject(_ context.Context, _, key string) (storage.ObjectReader, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	m.fetches++
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStorage) StatObject(_ context.Context, _, key string) (storage.ObjectStat, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectStat{}, os.ErrNotExist
	}
	return storage.ObjectStat{Size: int64(len(data)), LastModified: time.Now()}, nil
}

func buildPack(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(zw)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestEnsureLocalExtractsAndReuses(t *testing.T) {
	store := &memStorage{objects: map[string][]byte{
		packKey(42, "v3"): buildPack(t, map[string]string{
			"1.in":  "3 4\n",
			"1.out": "7\n",
		}),
	}}
	cache := NewCache(t.TempDir(), "judge-data", store)
	ctx := context.Background()

	dir, err := cache.EnsureLocal(ctx, 42, "v3")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	in, err := os.ReadFile(CasePath(dir, "1.in"))
	if err != nil {
		t.Fatalf("read case input: %v", err)
	}
	if string(in) != "3 4\n" {
		t.Fatalf("unexpected case input: %q", in)
	}

	if _, err := cache.EnsureLocal(ctx, 42, "v3"); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if store.fetches != 1 {
		t.Fatalf("expected one fetch for a cached pack, got %d", store.fetches)
	}
}

func TestEnsureLocalVersionBumpRefetches(t *testing.T) {
	store := &memStorage{objects: map[string][]byte{
		packKey(42, "v1"): buildPack(t, map[string]string{"1.in": "a"}),
		packKey(42, "v2"): buildPack(t, map[string]string{"1.in": "b"}),
	}}
	cache := NewCache(t.TempDir(), "judge-data", store)
	ctx := context.Background()

	if _, err := cache.EnsureLocal(ctx, 42, "v1"); err != nil {
		t.Fatalf("ensure v1: %v", err)
	}
	dir, err := cache.EnsureLocal(ctx, 42, "v2")
	if err != nil {
		t.Fatalf("ensure v2: %v", err)
	}
	data, err := os.ReadFile(CasePath(dir, "1.in"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "b" {
		t.Fatalf("expected v2 data, got %q", data)
	}
	if store.fetches != 2 {
		t.Fatalf("expected two fetches, got %d", store.fetches)
	}
}

func TestEnsureLocalMissingPack(t *testing.T) {
	cache := NewCache(t.TempDir(), "judge-data", &memStorage{objects: map[string][]byte{}})

	if _, err := cache.EnsureLocal(context.Background(), 99, "v1"); err == nil {
		t.Fatal("expected error for missing pack")
	}
}

func TestEnsureLocalRejectsEscapingEntries(t *testing.T) {
	store := &memStorage{objects: map[string][]byte{
		packKey(42, "v1"): buildPack(t, map[string]string{"../evil": "x"}),
	}}
	base := t.TempDir()
	cache := NewCache(base, "judge-data", store)

	if _, err := cache.EnsureLocal(context.Background(), 42, "v1"); err == nil {
		t.Fatal("expected error for escaping tar entry")
	}
	if _, err := os.Stat(filepath.Join(base, "42", "evil")); err == nil {
		t.Fatal("escaping entry must not be written")
	}
}

func TestEnsureLocalIncompleteExtractRetries(t *testing.T) {
	store := &memStorage{objects: map[string][]byte{
		packKey(42, "v1"): buildPack(t, map[string]string{"1.in": "a"}),
	}}
	base := t.TempDir()
	cache := NewCache(base, "judge-data", store)
	ctx := context.Background()

	dir, err := cache.EnsureLocal(ctx, 42, "v1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// Simulate a crash between extraction and marker write.
	if err := os.Remove(filepath.Join(dir, completeMarker)); err != nil {
		t.Fatal(err)
	}

	if _, err := cache.EnsureLocal(ctx, 42, "v1"); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if store.fetches != 2 {
		t.Fatalf("expected refetch of incomplete extract, got %d fetches", store.fetches)
	}
}
