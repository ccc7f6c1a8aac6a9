package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// FakeLeoCAD answers --version, writes one step image per requested frame
// (up to two) and a small parts list.
const FakeLeoCAD = `#!/bin/sh
if [ "$1" = "--version" ]; then echo "LeoCAD 23.03"; exit 0; fi
out=""
csv=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) out="$2"; shift ;;
    --export-csv) csv="$2"; shift ;;
  esac
  shift
done
if [ -n "$csv" ]; then
  printf 'Part Name,Color,Count\nBrick 2 x 4,Red,2\n' > "$csv"
  exit 0
fi
dir=$(dirname "$out")
printf 'PNGDATA' > "$dir/step01.png"
printf 'PNGDATA' > "$dir/step02.png"
exit 0
`

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WriteExecutable writes an executable script named name into dir and
// returns its path.
func WriteExecutable(t testing.TB, dir, name, script string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
