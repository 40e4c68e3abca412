package dockerengine

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestTarDirectoryIncludesAllFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644); err != nil {
		t.Fatalf("write Dockerfile: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatalf("mkdir src: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "index.js"), []byte("console.log(1)\n"), 0o644); err != nil {
		t.Fatalf("write src/index.js: %v", err)
	}

	r, err := tarDirectory(dir)
	if err != nil {
		t.Fatalf("tarDirectory: %v", err)
	}

	tr := tar.NewReader(r)
	found := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar read: %v", err)
		}
		found[hdr.Name] = true
	}

	for _, want := range []string{"Dockerfile", "src", "src/index.js"} {
		if !found[want] {
			t.Errorf("expected tar entry %q, got entries %v", want, found)
		}
	}
}

func TestShortIDTruncatesToEightChars(t *testing.T) {
	if got, want := shortID("0123456789abcdef"), "01234567"; got != want {
		t.Fatalf("shortID() = %q, want %q", got, want)
	}
	if got, want := shortID("short"), "short"; got != want {
		t.Fatalf("shortID() = %q, want %q", got, want)
	}
}

func TestImageIsActive(t *testing.T) {
	active := map[string]bool{"thakur-deploy/abcd1234": true}

	if !imageIsActive([]string{"thakur-deploy/abcd1234:buildid1"}, active) {
		t.Fatalf("expected image with an active repo to be reported active")
	}
	if imageIsActive([]string{"thakur-deploy/ffff0000:buildid2"}, active) {
		t.Fatalf("expected image with no running container to be reported orphaned")
	}
	if imageIsActive(nil, active) {
		t.Fatalf("expected an untagged image to be reported orphaned")
	}
}
