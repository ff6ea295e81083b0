package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "plain.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if _, err := s.Get(ctx, KeySession); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing key: err = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, KeySession, []byte(`{"userId":"u1"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, KeySession)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"userId":"u1"}` {
		t.Errorf("Get = %q", got)
	}
	if err := s.Delete(ctx, KeySession); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, KeySession); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Delete: err = %v, want ErrNotFound", err)
	}
	// Deleting again is a no-op.
	if err := s.Delete(ctx, KeySession); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "plain.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Set(ctx, KeyLockEnabled, []byte("true")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore reopen: %v", err)
	}
	got, err := reopened.Get(ctx, KeyLockEnabled)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "true" {
		t.Errorf("Get = %q, want true", got)
	}
}

func TestSecureFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewSecureFileStore(filepath.Join(dir, "secure.json"))
	if err != nil {
		t.Fatalf("NewSecureFileStore: %v", err)
	}
	if err := s.Set(ctx, KeyAccessToken, []byte("tok-abc")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, KeyAccessToken)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "tok-abc" {
		t.Errorf("Get = %q, want tok-abc", got)
	}

	// Values on disk are not plaintext.
	raw, err := os.ReadFile(filepath.Join(dir, "secure.json"))
	if err != nil {
		t.Fatalf("read store file: %v", err)
	}
	if bytes.Contains(raw, []byte("tok-abc")) {
		t.Error("secure store file contains plaintext token")
	}
}

func TestSecureFileStore_SameMasterKeyAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "secure.json")
	s, err := NewSecureFileStore(path)
	if err != nil {
		t.Fatalf("NewSecureFileStore: %v", err)
	}
	if err := s.Set(ctx, KeyRefreshToken, []byte("refresh-1")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reopened, err := NewSecureFileStore(path)
	if err != nil {
		t.Fatalf("NewSecureFileStore reopen: %v", err)
	}
	got, err := reopened.Get(ctx, KeyRefreshToken)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "refresh-1" {
		t.Errorf("Get = %q, want refresh-1", got)
	}
}

func TestSecureFileStore_RejectsTamperedValue(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "secure.json")
	s, err := NewSecureFileStore(path)
	if err != nil {
		t.Fatalf("NewSecureFileStore: %v", err)
	}
	if err := s.Set(ctx, KeyAccessToken, []byte("tok-abc")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Flip a ciphertext bit through the inner store.
	sealed, err := s.inner.Get(ctx, KeyAccessToken)
	if err != nil {
		t.Fatalf("inner Get: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if err := s.inner.Set(ctx, KeyAccessToken, sealed); err != nil {
		t.Fatalf("inner Set: %v", err)
	}

	if _, err := s.Get(ctx, KeyAccessToken); err == nil {
		t.Fatal("Get should fail for tampered ciphertext")
	}
}

func TestInstallationID_StableAcrossCalls(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	first, err := InstallationID(ctx, s)
	if err != nil {
		t.Fatalf("InstallationID: %v", err)
	}
	if first == "" {
		t.Fatal("InstallationID returned empty id")
	}
	second, err := InstallationID(ctx, s)
	if err != nil {
		t.Fatalf("InstallationID second call: %v", err)
	}
	if second != first {
		t.Errorf("id changed across calls: %q then %q", first, second)
	}
}
