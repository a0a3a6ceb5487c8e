package randsize

import "testing"

func isPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}

func TestBlockSizeIsAPowerOfTwoWithinBounds(t *testing.T) {
	c := New(1)
	for i := 0; i < 200; i++ {
		bs := c.BlockSize(256, maxRandomBlockSizeForTest)
		if bs < minBSize || bs > maxBSize {
			t.Fatalf("BlockSize = %d, want [%d,%d]", bs, minBSize, maxBSize)
		}
		if !isPowerOfTwo(bs) {
			t.Fatalf("BlockSize = %d, not a power of two", bs)
		}
	}
}

// maxRandomBlockSizeForTest mirrors driver.maxRandomBlockSize without
// importing internal/driver (which would be a cycle).
const maxRandomBlockSizeForTest = 1 << 21

func TestBlockSizeFloorsAtAlignment(t *testing.T) {
	c := New(1)
	for i := 0; i < 50; i++ {
		if bs := c.BlockSize(65536, maxRandomBlockSizeForTest); bs < 65536 {
			t.Fatalf("BlockSize = %d, want >= alignment 65536", bs)
		}
	}
}

func TestBlockSizeWithNoRoomToDoubleReturnsFloor(t *testing.T) {
	c := New(1)
	if got := c.BlockSize(4096, 4096); got != 4096 {
		t.Fatalf("BlockSize = %d, want 4096 (maxsize <= floor leaves no doublings)", got)
	}
}

func TestFileSizeSpans10To2048Blocks(t *testing.T) {
	c := New(2)
	const bsize = 4096
	for i := 0; i < 500; i++ {
		fs := c.FileSize(bsize)
		blocks := fs / bsize
		if blocks < minBlocks || blocks >= maxBlocks {
			t.Fatalf("FileSize = %d (%d blocks), want [%d,%d) blocks", fs, blocks, minBlocks, maxBlocks)
		}
		if fs%bsize != 0 {
			t.Fatalf("FileSize = %d, not a multiple of bsize %d", fs, bsize)
		}
	}
}

func TestFileSizeNeverExceeds64MiB(t *testing.T) {
	c := New(2)
	const bsize = 256
	for i := 0; i < 500; i++ {
		if fs := c.FileSize(bsize); fs > maxFileSize {
			t.Fatalf("FileSize = %d, exceeds 64MiB cap", fs)
		}
	}
}

func TestOffsetIsBlockAlignedAndInBounds(t *testing.T) {
	c := New(3)
	const bsize = 1024
	const fileSize = 1024 * 10
	for i := 0; i < 200; i++ {
		off := c.Offset(fileSize, bsize)
		if off < 0 || off > fileSize-bsize {
			t.Fatalf("Offset = %d, out of bounds for file size %d", off, fileSize)
		}
		if off%bsize != 0 {
			t.Fatalf("Offset = %d, not block-aligned", off)
		}
	}
}

func TestOffsetZeroForSmallFiles(t *testing.T) {
	c := New(4)
	if off := c.Offset(1024, 1024); off != 0 {
		t.Fatalf("Offset = %d, want 0 for a one-block file", off)
	}
}

func TestTwoChoosersWithDifferentSeedsDiverge(t *testing.T) {
	a := New(10)
	b := New(11)
	same := true
	for i := 0; i < 20; i++ {
		if a.FileSize(4096) != b.FileSize(4096) {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("choosers with different seeds produced identical sequences")
	}
}
