package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/markkampe/loadgen/internal/bufset"
	"github.com/markkampe/loadgen/internal/config"
	"github.com/markkampe/loadgen/internal/randsize"
)

func newDriver(t *testing.T, bsize int) *Driver {
	t.Helper()
	bufs, err := bufset.New(2, bsize, 512)
	if err != nil {
		t.Fatalf("bufset.New: %v", err)
	}
	t.Cleanup(func() { bufs.Close() })
	return &Driver{
		Cfg:  &config.Config{Tag: "test"},
		Ctl:  &config.Control{},
		Bufs: bufs,
		Rand: randsize.New(1),
	}
}

func TestCreateThenVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f1")
	const bsize = 1024
	const length = bsize * 4

	d := newDriver(t, bsize)
	if _, err := d.Create(path, length, bsize); err != nil {
		t.Fatalf("Create: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() != length {
		t.Fatalf("created file size = %v (err %v), want %d", info, err, length)
	}

	if _, err := d.Verify(path, "", bsize, true); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f1")
	const bsize = 1024
	const length = bsize * 2

	d := newDriver(t, bsize)
	if _, err := d.Create(path, length, bsize); err != nil {
		t.Fatalf("Create: %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xAA}, bsize+300); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	f.Close()

	if _, err := d.Verify(path, "", bsize, true); err == nil {
		t.Fatalf("Verify: expected corruption to be detected")
	}
}

func TestCopyPreservesContent(t *testing.T) {
	dir := t.TempDir()
	// Same base name in two directories: Verify's header check requires
	// the stored #FIL name to match the file being verified.
	src := filepath.Join(dir, "f1")
	dst := filepath.Join(t.TempDir(), "f1")
	const bsize = 512
	const length = bsize * 3

	d := newDriver(t, bsize)
	if _, err := d.Create(src, length, bsize); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := d.Copy(src, dst, bsize); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	if _, err := d.Verify(dst, src, bsize, true); err != nil {
		t.Fatalf("Verify against source: %v", err)
	}
}

func TestCreateHonorsShutdownFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f1")
	const bsize = 512
	const length = bsize * 100

	d := newDriver(t, bsize)
	d.Ctl.Shutdown()
	st, err := d.Create(path, length, bsize)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st.Files != 0 {
		t.Fatalf("Files = %d, want 0 (shutdown should pre-empt completion)", st.Files)
	}
}

func TestCreateSimulateSkipsRealIO(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f1")
	const bsize = 512
	const length = bsize * 4

	d := newDriver(t, bsize)
	d.Cfg.Simulate = true
	st, err := d.Create(path, length, bsize)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st.Files != 1 || st.Bytes != length {
		t.Fatalf("st = %+v, want Files=1 Bytes=%d", st, length)
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("simulate mode must not create a real file at %s", path)
	}
}

func TestVerifyDerivesBlockSizeFromHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f1")
	const bsize = 2048
	const length = bsize * 3

	d := newDriver(t, bsize)
	if _, err := d.Create(path, length, bsize); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// bsize=0 must be resolved from the file's own #BLK header rather
	// than requiring the caller to already know it.
	if _, err := d.Verify(path, "", 0, true); err != nil {
		t.Fatalf("Verify with bsize=0: %v", err)
	}
}

func TestVerifyWithoutCheckContentIgnoresCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f1")
	const bsize = 1024
	const length = bsize * 2

	d := newDriver(t, bsize)
	if _, err := d.Create(path, length, bsize); err != nil {
		t.Fatalf("Create: %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xAA}, bsize+300); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	f.Close()

	// Plain read mode (no --verify) must still succeed: it accounts
	// for the bytes transferred but does not check pattern content.
	if _, err := d.Verify(path, "", bsize, false); err != nil {
		t.Fatalf("Verify(checkContent=false): %v", err)
	}
}
