package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/shasdl/internal/metrics"
	"github.com/local/shasdl/internal/shas"
)

// AmudFile is a downloaded amud on disk.
type AmudFile struct {
	Page    int
	Address shas.Address
	Path    string
}

// MergeFailure is a merge that did not produce its output.
type MergeFailure struct {
	Output string
	Err    error
}

func (f MergeFailure) Error() string {
	return fmt.Sprintf("merge %s: %v", filepath.Base(f.Output), f.Err)
}

// MergeResult lists what a merge pass produced and which inputs may go.
type MergeResult struct {
	LeafPaths []string
	FinalPath string
	Deletable []string
	Failures  []MergeFailure
}

// MergeOrchestrator builds per-daf and whole-selection PDFs.
type MergeOrchestrator struct {
	merger    Merger
	outputDir string
}

func NewMergeOrchestrator(m Merger, outputDir string) *MergeOrchestrator {
	return &MergeOrchestrator{merger: m, outputDir: outputDir}
}

// Merge runs the plan over downloaded. Failed merges are collected in the
// result; the returned error is only the context error.
func (m *MergeOrchestrator) Merge(ctx context.Context, corpus shas.CorpusItem, descriptor string, downloaded []AmudFile, plan MergePlan) (MergeResult, error) {
	var res MergeResult
	files := append([]AmudFile(nil), downloaded...)
	sort.Slice(files, func(i, j int) bool { return files[i].Page < files[j].Page })

	var next []string
	if plan.MergeSidesIntoLeaf {
		for _, group := range groupByLeaf(files) {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			out := filepath.Join(shas.MasechtaDir(m.outputDir, corpus.Name), shas.DafFileName(corpus.Name, group.leaf))
			inputs := make([]string, len(group.files))
			for i, f := range group.files {
				inputs[i] = f.Path
			}
			if err := m.merge(ctx, "daf", inputs, out); err != nil {
				log.Error().Err(err).Str("masechta", corpus.Name).Int("daf", group.leaf).Msg("daf merge failed, keeping its amudim")
				res.Failures = append(res.Failures, MergeFailure{Output: out, Err: err})
				continue
			}
			res.LeafPaths = append(res.LeafPaths, out)
			next = append(next, out)
			if !plan.KeepIntermediates {
				res.Deletable = append(res.Deletable, inputs...)
			}
		}
	} else {
		for _, f := range files {
			next = append(next, f.Path)
		}
	}

	if !plan.MergeAllIntoOne || len(next) == 0 {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	out := filepath.Join(m.outputDir, shas.FullFileName(corpus.Name, descriptor))
	if err := m.merge(ctx, "full", next, out); err != nil {
		log.Error().Err(err).Str("masechta", corpus.Name).Str("output", out).Msg("full merge failed")
		res.Failures = append(res.Failures, MergeFailure{Output: out, Err: err})
		return res, nil
	}
	res.FinalPath = out
	return res, nil
}

func (m *MergeOrchestrator) merge(ctx context.Context, stage string, inputs []string, out string) error {
	start := time.Now()
	_, err := m.merger.Merge(ctx, inputs, out)
	metrics.ObserveMerge(stage, err == nil, time.Since(start))
	return err
}

type leafGroup struct {
	leaf  int
	files []AmudFile
}

// groupByLeaf expects files sorted by page, so each group is front then back
// and groups come in ascending leaf order.
func groupByLeaf(files []AmudFile) []leafGroup {
	var groups []leafGroup
	for _, f := range files {
		if n := len(groups); n > 0 && groups[n-1].leaf == f.Address.Leaf {
			groups[n-1].files = append(groups[n-1].files, f)
			continue
		}
		groups = append(groups, leafGroup{leaf: f.Address.Leaf, files: []AmudFile{f}})
	}
	return groups
}
