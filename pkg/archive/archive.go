package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/twpayne/go-vfs"
)

// Name returns the conventional archive file name for one release.
func Name(product, version string) string {
	return fmt.Sprintf("%s_v%s.zip", product, version)
}

// Zip compresses dir into a single archive at outPath, with dir's contents
// at the archive root. A pre-existing archive of the same name is
// overwritten.
func Zip(fs vfs.FS, dir, outPath string) error {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	if err := addDir(fs, zw, dir, ""); err != nil {
		zw.Close()
		return err
	}

	if err := zw.Close(); err != nil {
		return err
	}

	return fs.WriteFile(outPath, buf.Bytes(), 0644)
}

func addDir(fs vfs.FS, zw *zip.Writer, dir, prefix string) error {
	infos, err := fs.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, info := range infos {
		src := filepath.Join(dir, info.Name())
		name := info.Name()
		if prefix != "" {
			name = prefix + "/" + name
		}

		if info.IsDir() {
			if err := addDir(fs, zw, src, name); err != nil {
				return err
			}
			continue
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = name
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		data, err := fs.ReadFile(src)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}

	return nil
}
