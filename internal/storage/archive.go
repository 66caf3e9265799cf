package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const archiveExt = ".zst"

// Archive compresses files into the replica's directory of the run. The
// originals are left in place.
func (r *Run) Archive(replica int, paths ...string) ([]string, error) {
	dir := filepath.Join(r.ReplicaDir(replica), "analysis")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	written := make([]string, 0, len(paths))
	for _, src := range paths {
		dst := filepath.Join(dir, filepath.Base(src)+archiveExt)
		if err := compressFile(src, dst); err != nil {
			return written, fmt.Errorf("archive %s: %w", src, err)
		}
		written = append(written, dst)
	}
	return written, nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Extract decompresses an archived file. An empty dst strips the .zst
// suffix.
func Extract(src, dst string) (string, error) {
	if dst == "" {
		if !strings.HasSuffix(src, archiveExt) {
			return "", fmt.Errorf("extract %s: not a %s file", src, archiveExt)
		}
		dst = strings.TrimSuffix(src, archiveExt)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return "", err
	}
	defer dec.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, dec); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}
