package vault

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFSVault(t *testing.T) *FileSystemVault {
	t.Helper()
	v, err := NewFileSystemVault("test-vault", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error: %v", err)
	}
	return v
}

func TestFileSystemVaultRoundTrip(t *testing.T) {
	v := newTestFSVault(t)
	content := "captured upload bytes"

	if err := v.PutContent("chk1", strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("PutContent() error: %v", err)
	}

	ok, err := v.HasContent("chk1")
	if err != nil {
		t.Fatalf("HasContent() error: %v", err)
	}
	if !ok {
		t.Fatal("HasContent() = false after put")
	}

	var buf bytes.Buffer
	if err := v.GetContent("chk1", &buf); err != nil {
		t.Fatalf("GetContent() error: %v", err)
	}
	if buf.String() != content {
		t.Errorf("GetContent() = %q, want %q", buf.String(), content)
	}
}

func TestFileSystemVaultPutContentIdempotent(t *testing.T) {
	v := newTestFSVault(t)
	content := "stable bytes"

	for i := 0; i < 2; i++ {
		if err := v.PutContent("chk", strings.NewReader(content), int64(len(content))); err != nil {
			t.Fatalf("PutContent() iteration %d error: %v", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := v.GetContent("chk", &buf); err != nil {
		t.Fatalf("GetContent() error: %v", err)
	}
	if buf.String() != content {
		t.Errorf("GetContent() = %q, want %q", buf.String(), content)
	}
}

func TestFileSystemVaultGetMissingContent(t *testing.T) {
	v := newTestFSVault(t)

	var buf bytes.Buffer
	if err := v.GetContent("missing", &buf); err == nil {
		t.Error("GetContent(missing) error = nil, want error")
	}
}

func TestFileSystemVaultValidateSetup(t *testing.T) {
	t.Run("writable root", func(t *testing.T) {
		v := newTestFSVault(t)
		if err := v.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error: %v", err)
		}
	})

	t.Run("unwritable root", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("running as root, permission bits are not enforced")
		}
		root := filepath.Join(t.TempDir(), "ro")
		if err := os.MkdirAll(root, 0555); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		v, err := NewFileSystemVault("test-vault", root)
		if err != nil {
			// Creating the content dir already failed, which is also a
			// correct rejection of an unwritable root.
			return
		}
		if err := v.ValidateSetup(); err == nil {
			t.Error("ValidateSetup() on read-only root succeeded")
		}
	})
}
