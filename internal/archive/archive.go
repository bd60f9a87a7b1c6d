// Package archive bundles batch downloads into a single zip whose name
// carries the document types, numbers, and the build date.
package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MarceloCBif/BuscaBoleto/internal/document"
	"github.com/MarceloCBif/BuscaBoleto/internal/errs"
	"github.com/MarceloCBif/BuscaBoleto/internal/metrics"
)

// Name builds the bundle file name: PREFIX_IDENT_DD-MM-YYYY.zip. The
// prefix reflects the document types present; the identifier joins the
// distinct numbers in ascending numeric order, collapsed to first-last
// when more than three.
func Name(types []document.Type, numbers []string, now time.Time) string {
	return prefix(types) + "_" + identifier(numbers) + "_" + now.Format("02-01-2006") + ".zip"
}

func prefix(types []document.Type) string {
	var nf, boleto bool
	for _, t := range types {
		switch t {
		case document.TypeNF:
			nf = true
		case document.TypeBoleto:
			boleto = true
		}
	}
	switch {
	case nf && boleto:
		return "NFBOL"
	case nf:
		return "NF"
	default:
		return "BOL"
	}
}

func identifier(numbers []string) string {
	seen := make(map[string]bool)
	var list []string
	for _, n := range numbers {
		if n == "" || n == "-" || seen[n] {
			continue
		}
		seen[n] = true
		list = append(list, n)
	}
	if len(list) == 0 {
		return "doc"
	}
	sort.SliceStable(list, func(i, j int) bool {
		return numValue(list[i]) < numValue(list[j])
	})
	if len(list) > 3 {
		return list[0] + "-" + list[len(list)-1]
	}
	return strings.Join(list, "-")
}

// Non-numeric identifiers sort as zero.
func numValue(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Bundle writes the named files into a deflate-compressed archive at
// zipPath, each stored under its base name, and removes the originals
// afterwards. A failed build removes the half-written archive and
// leaves the originals in place.
func Bundle(zipPath string, files []string) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return errs.Wrap(errs.Unknown, "create archive "+zipPath, err)
	}

	zw := zip.NewWriter(f)
	for _, file := range files {
		if err := addFile(zw, file); err != nil {
			zw.Close()
			f.Close()
			os.Remove(zipPath)
			return err
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(zipPath)
		return errs.Wrap(errs.Unknown, "finish archive "+zipPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(zipPath)
		return errs.Wrap(errs.Unknown, "close archive "+zipPath, err)
	}

	for _, file := range files {
		_ = os.Remove(file)
	}
	metrics.RecordArchive(len(files))
	return nil
}

func addFile(zw *zip.Writer, file string) error {
	src, err := os.Open(file)
	if err != nil {
		return errs.Wrap(errs.Unknown, "open "+file, err)
	}
	defer src.Close()

	w, err := zw.Create(filepath.Base(file))
	if err != nil {
		return errs.Wrap(errs.Unknown, "add "+file+" to archive", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return errs.Wrap(errs.Unknown, "write "+file+" to archive", err)
	}
	return nil
}
