package product

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// untar extracts the regular files of a tar archive whose base names satisfy
// keep, flattening directories. It returns the extracted paths.
func untar(src, dir string, keep func(name string) bool) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(src), err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Base(hdr.Name)
		if !keep(name) {
			continue
		}
		dst := filepath.Join(dir, name)
		if err := writeFrom(dst, tr); err != nil {
			return nil, err
		}
		out = append(out, dst)
	}
	return out, nil
}

// gunzip decompresses src next to itself without the .gz suffix.
func gunzip(src string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("gunzip %s: %w", filepath.Base(src), err)
	}
	defer zr.Close()

	dst := strings.TrimSuffix(src, ".gz")
	if err := writeFrom(dst, zr); err != nil {
		return "", err
	}
	return dst, nil
}

// unzip extracts members of a zip (or KMZ) archive whose base names satisfy
// keep.
func unzip(src, dir string, keep func(name string) bool) ([]string, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(src), err)
	}
	defer zr.Close()

	var out []string
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(zf.Name)
		if !keep(name) {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, err
		}
		dst := filepath.Join(dir, name)
		err = writeFrom(dst, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, dst)
	}
	return out, nil
}

func writeFrom(dst string, r io.Reader) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", filepath.Base(dst), err)
	}
	return out.Close()
}
