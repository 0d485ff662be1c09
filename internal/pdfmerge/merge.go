package pdfmerge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/local/shasdl/internal/filetype"
)

// ErrNoValidInputs is returned when every input of a merge was skipped.
var ErrNoValidInputs = errors.New("no valid PDF inputs to merge")

// Skipped records an input left out of a merge.
type Skipped struct {
	Path   string
	Reason string
}

// Result describes a finished merge.
type Result struct {
	Output  string
	Inputs  []string
	Skipped []Skipped
	Pages   int
}

type joinFunc func(inputs []string, output string) error

// Merger concatenates PDFs with pdfcpu.
type Merger struct {
	conf     *model.Configuration
	detector *filetype.Detector
	join     joinFunc
	count    func(path string) (int, error)
}

// New returns a Merger; a nil conf uses pdfcpu defaults.
func New(conf *model.Configuration) *Merger {
	if conf == nil {
		conf = model.NewDefaultConfiguration()
	}
	m := &Merger{conf: conf, detector: filetype.New(), count: PageCount}
	m.join = func(inputs []string, output string) error {
		return api.MergeCreateFile(inputs, output, false, m.conf)
	}
	return m
}

// Merge writes inputs, in the given order, into output. Inputs that are
// missing, empty, not a PDF or repeated are skipped and logged. The output is
// written next to its final name and renamed, so a failed merge leaves
// nothing behind. An existing output is replaced.
func (m *Merger) Merge(ctx context.Context, inputs []string, output string) (Result, error) {
	res := Result{Output: output}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		key := filepath.Clean(in)
		if seen[key] {
			res.Skipped = append(res.Skipped, Skipped{Path: in, Reason: "duplicate input"})
			log.Warn().Str("file", in).Str("output", output).Msg("skipping duplicate merge input")
			continue
		}
		seen[key] = true
		if err := m.detector.CheckPDF(in); err != nil {
			res.Skipped = append(res.Skipped, Skipped{Path: in, Reason: err.Error()})
			log.Warn().Err(err).Str("file", in).Str("output", output).Msg("skipping merge input")
			continue
		}
		res.Inputs = append(res.Inputs, in)
	}
	if len(res.Inputs) == 0 {
		return res, fmt.Errorf("%s: %w", filepath.Base(output), ErrNoValidInputs)
	}

	dir := filepath.Dir(output)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(output)+".*.pdf")
	if err != nil {
		return res, fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()

	if err := m.join(res.Inputs, tmpName); err != nil {
		_ = os.Remove(tmpName)
		return res, fmt.Errorf("merge into %s: %w", filepath.Base(output), err)
	}
	if res.Pages, err = m.count(tmpName); err != nil {
		_ = os.Remove(tmpName)
		return res, fmt.Errorf("verify %s: %w", filepath.Base(output), err)
	}
	if err := os.Rename(tmpName, output); err != nil {
		_ = os.Remove(tmpName)
		return res, fmt.Errorf("rename merged output: %w", err)
	}

	log.Info().
		Str("output", output).
		Int("inputs", len(res.Inputs)).
		Int("skipped", len(res.Skipped)).
		Int("pages", res.Pages).
		Msg("merged PDF")
	return res, nil
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}
