// Package search orchestrates document retrieval: number and period
// searches across the invoice and tax note trees, batch downloads with
// bundling, and client-name enrichment.
package search

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/MarceloCBif/BuscaBoleto/internal/archive"
	"github.com/MarceloCBif/BuscaBoleto/internal/document"
	"github.com/MarceloCBif/BuscaBoleto/internal/errs"
	"github.com/MarceloCBif/BuscaBoleto/internal/logging"
	"github.com/MarceloCBif/BuscaBoleto/internal/metrics"
	"github.com/MarceloCBif/BuscaBoleto/internal/remote"
)

// Source is the remote access surface the engine drives.
type Source interface {
	EnsureConnected() bool
	Walk(root string) []remote.Entry
	WalkTop(root string) []remote.Entry
	Download(remotePath, localName string) (string, error)
	FetchTemp(remotePath string) (string, error)
}

// Config holds the directory layout the engine works with.
type Config struct {
	BoletoDir   string
	NFDir       string // empty skips the tax note tree
	DownloadDir string
}

// Engine runs searches and downloads over a Source. Set OnProgress to
// receive human-readable step descriptions.
type Engine struct {
	src        Source
	cfg        Config
	OnProgress func(msg string)

	now func() time.Time
}

// New builds an engine over the given source.
func New(src Source, cfg Config) *Engine {
	return &Engine{src: src, cfg: cfg, now: time.Now}
}

// Options control a number search.
type Options struct {
	Literal   bool
	Recursive bool
}

// SearchNumber finds every document whose name matches the requested
// number and returns them deduplicated and grouped. A request without
// digits returns nothing without touching the server.
func (e *Engine) SearchNumber(number string, opts Options) []document.Group {
	if document.Digits(number) == "" {
		return nil
	}
	metrics.RecordSearch("number")
	hits := e.collect(opts.Recursive, func(entry remote.Entry) bool {
		return document.Match(entry.Name, number, opts.Literal)
	})
	return document.GroupHits(hits)
}

// SearchPeriod finds documents modified inside the date range. The
// bounds widen to whole days, midnight through 23:59:59.
func (e *Engine) SearchPeriod(from, to time.Time) []document.Group {
	metrics.RecordSearch("period")
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, to.Location())
	hits := e.collect(true, func(entry remote.Entry) bool {
		return !entry.ModTime.Before(start) && !entry.ModTime.After(end)
	})
	return document.GroupHits(hits)
}

func (e *Engine) collect(recursive bool, keep func(remote.Entry) bool) []document.Hit {
	walk := e.src.Walk
	if !recursive {
		walk = e.src.WalkTop
	}

	var hits []document.Hit
	e.progress("searching invoices")
	for _, entry := range walk(e.cfg.BoletoDir) {
		if keep(entry) {
			hits = append(hits, asHit(entry, document.TypeBoleto))
		}
	}
	if e.cfg.NFDir != "" {
		e.progress("searching tax notes")
		for _, entry := range walk(e.cfg.NFDir) {
			if keep(entry) {
				hits = append(hits, asHit(entry, document.TypeNF))
			}
		}
	}
	return hits
}

func asHit(entry remote.Entry, typ document.Type) document.Hit {
	return document.Hit{Path: entry.Path, Name: entry.Name, ModTime: entry.ModTime, Type: typ}
}

// Download transfers one document into the download directory.
func (e *Engine) Download(remotePath, localName string) (string, error) {
	return e.src.Download(remotePath, localName)
}

// BatchResult reports a finished batch download.
type BatchResult struct {
	Archive   string
	Succeeded int
	Failed    int
	Errors    []string
}

// DownloadAll transfers the selected documents one by one, bundles the
// successes into a zip named after the selection, and removes the
// bundled files. Individual failures do not stop the batch; with zero
// successes no archive is built and the error reports that.
func (e *Engine) DownloadAll(selection []document.Hit) (BatchResult, error) {
	var res BatchResult
	if len(selection) == 0 {
		return res, errs.New(errs.Unknown, "no documents selected")
	}

	numbers := make([]string, 0, len(selection))
	for _, hit := range selection {
		numbers = append(numbers, document.Number(hit.Name))
	}

	var files []string
	var types []document.Type
	for i, hit := range selection {
		e.progress(fmt.Sprintf("downloading %d/%d (%s): %s", i+1, len(selection), hit.Type, hit.Name))
		local, err := e.src.Download(hit.Path, hit.Name)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, hit.Name+": "+err.Error())
			continue
		}
		res.Succeeded++
		files = append(files, local)
		types = append(types, hit.Type)
	}

	if res.Succeeded == 0 {
		return res, errs.New(errs.Partial, "no documents could be downloaded")
	}

	zipPath := filepath.Join(e.cfg.DownloadDir, archive.Name(types, numbers, e.now()))
	if err := archive.Bundle(zipPath, files); err != nil {
		return res, err
	}
	res.Archive = zipPath
	logging.Info("batch archive written",
		zap.String("archive", zipPath),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// Extractor resolves a client name from a locally fetched document.
type Extractor func(localPath string) (string, error)

// EnrichClients resolves client names group by group, writing them
// into the hits in place. The invoice member is the preferred text
// source with the tax note as fallback, and a resolved name applies to
// the whole group. cancelled is checked between groups; names already
// applied stay applied on cancel. Returns how many groups got a name.
func (e *Engine) EnrichClients(groups []document.Group, extract Extractor, cancelled func() bool) int {
	done := 0
	for gi := range groups {
		if cancelled != nil && cancelled() {
			break
		}
		name := e.clientForGroup(groups[gi], extract)
		if name == "" {
			continue
		}
		for hi := range groups[gi].Hits {
			groups[gi].Hits[hi].Client = name
		}
		done++
	}
	return done
}

func (e *Engine) clientForGroup(g document.Group, extract Extractor) string {
	ordered := make([]document.Hit, 0, len(g.Hits))
	for _, h := range g.Hits {
		if h.Type == document.TypeBoleto {
			ordered = append(ordered, h)
		}
	}
	for _, h := range g.Hits {
		if h.Type != document.TypeBoleto {
			ordered = append(ordered, h)
		}
	}

	for _, h := range ordered {
		tmp, err := e.src.FetchTemp(h.Path)
		if err != nil {
			continue
		}
		name, err := extract(tmp)
		os.Remove(tmp)
		if err == nil && name != "" {
			return name
		}
	}
	return ""
}

func (e *Engine) progress(msg string) {
	if e.OnProgress != nil {
		e.OnProgress(msg)
	}
}
