package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Digest describes the bytes written by WriteAtomic or a verified copy.
type Digest struct {
	Size   int64
	SHA256 string
}

// WriteAtomic streams r into a temporary file beside dst and renames it into
// place once the write succeeds. dst is never left partially written.
func WriteAtomic(dst string, r io.Reader, mode os.FileMode) (Digest, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return Digest{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		return Digest{}, fmt.Errorf("write %s: %w", filepath.Base(dst), err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return Digest{}, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return Digest{}, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Digest{}, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return Digest{}, fmt.Errorf("rename into place: %w", err)
	}
	committed = true
	return Digest{Size: written, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// CopyFileVerified streams src to dst with SHA256 + size integrity verification.
// Removes dst on mismatch.
func CopyFileVerified(src, dst string) (Digest, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return Digest{}, fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return Digest{}, err
	}
	defer in.Close()

	srcHasher := sha256.New()
	digest, err := WriteAtomic(dst, io.TeeReader(in, srcHasher), 0o644)
	if err != nil {
		return Digest{}, err
	}

	if digest.Size != srcInfo.Size() {
		_ = os.Remove(dst)
		return Digest{}, fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), digest.Size)
	}
	if hex.EncodeToString(srcHasher.Sum(nil)) != digest.SHA256 {
		_ = os.Remove(dst)
		return Digest{}, fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return digest, nil
}
