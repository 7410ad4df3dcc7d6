// Package archive packs a directory into a single tar.gz file so it can be
// uploaded like any other file.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// Info describes a finished archive
type Info struct {
	Files      int
	Original   int64 // bytes of regular file content packed
	Compressed int64 // size of the written archive
}

// Ratio returns compressed size over original size, 0 for empty input
func (i Info) Ratio() float64 {
	if i.Original == 0 {
		return 0
	}
	return float64(i.Compressed) / float64(i.Original)
}

// TarGz writes dir to dst as a gzip compressed tar. Entry names start with the
// base name of dir. Symlinks are stored as links, other special files are
// skipped.
func TarGz(dir, dst string) (Info, error) {
	var info Info

	st, err := os.Stat(dir)
	if err != nil {
		return info, err
	}
	if !st.IsDir() {
		return info, fmt.Errorf("%s is not a directory", dir)
	}

	out, err := os.Create(dst)
	if err != nil {
		return info, fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	root := filepath.Clean(dir)
	parent := filepath.Dir(root)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		mode := fi.Mode()
		if !mode.IsRegular() && !mode.IsDir() && mode&os.ModeSymlink == 0 {
			return nil
		}

		var link string
		if mode&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if mode.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !mode.IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := io.Copy(tw, f)
		if err != nil {
			return err
		}
		info.Files++
		info.Original += n
		return nil
	})
	if err != nil {
		return info, fmt.Errorf("failed to archive %s: %w", dir, err)
	}

	if err := tw.Close(); err != nil {
		return info, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return info, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return info, fmt.Errorf("failed to finish archive: %w", err)
	}

	written, err := os.Stat(dst)
	if err != nil {
		return info, err
	}
	info.Compressed = written.Size()
	return info, nil
}
