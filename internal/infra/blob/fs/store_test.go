package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tapeview/internal/blob/core"
)

func TestStorePutGetHead(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	payload := "dataset_id,well_id\n7,A1\n"
	info, err := s.Put(ctx, "exports/s1/e1.csv", strings.NewReader(payload), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"generation": "3"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	sum := sha256.Sum256([]byte(payload))
	if info.ETag != hex.EncodeToString(sum[:]) || info.Size != int64(len(payload)) {
		t.Fatalf("unexpected info %+v", info)
	}

	got, rc, err := s.Get(ctx, "exports/s1/e1.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != payload || got.ContentType != "text/csv" || got.Metadata["generation"] != "3" {
		t.Fatalf("unexpected blob %q %+v", body, got)
	}
	head, err := s.Head(ctx, "exports/s1/e1.csv")
	if err != nil || head.ETag != info.ETag {
		t.Fatalf("head: %+v %v", head, err)
	}
}

func TestStoreCreateOnly(t *testing.T) {
	ctx := context.Background()
	s, _ := New(t.TempDir())
	if _, err := s.Put(ctx, "a.json", strings.NewReader("[]"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "a.json", strings.NewReader("{}"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	s, _ := New(t.TempDir())
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/../b", "x.meta"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestStoreMissing(t *testing.T) {
	ctx := context.Background()
	s, _ := New(t.TempDir())
	if _, _, err := s.Get(ctx, "nope.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Head(ctx, "nope.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreListByPrefix(t *testing.T) {
	ctx := context.Background()
	s, _ := New(t.TempDir())
	for _, key := range []string{"exports/s2/b.csv", "exports/s1/a.csv", "exports/s1/c.json"} {
		if _, err := s.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := s.List(ctx, "exports/s1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "exports/s1/a.csv" || list[1].Key != "exports/s1/c.json" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestStoreListCorruptMeta(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	if err := os.WriteFile(filepath.Join(dir, "bad.csv.meta"), []byte("{"), 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
	if _, err := s.List(context.Background(), ""); err == nil {
		t.Fatalf("expected corrupt meta error")
	}
}

func TestNewDefaultsRoot(t *testing.T) {
	wd, _ := os.Getwd()
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() { _ = os.Chdir(wd) }()
	s, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Root() != defaultRoot || s.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected store root %s", s.Root())
	}
	if _, err := os.Stat(filepath.Join(dir, defaultRoot)); err != nil {
		t.Fatalf("expected root directory: %v", err)
	}
}
