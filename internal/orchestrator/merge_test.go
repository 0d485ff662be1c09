package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/shasdl/internal/pdfmerge"
	"github.com/local/shasdl/internal/shas"
)

type mergeCall struct {
	inputs []string
	output string
}

type fakeMerger struct {
	calls []mergeCall
	fail  map[string]error // by output base name
}

func (m *fakeMerger) Merge(_ context.Context, inputs []string, output string) (pdfmerge.Result, error) {
	m.calls = append(m.calls, mergeCall{inputs: append([]string(nil), inputs...), output: output})
	if err := m.fail[filepath.Base(output)]; err != nil {
		return pdfmerge.Result{}, err
	}
	return pdfmerge.Result{Output: output, Inputs: inputs}, nil
}

func amudim(pages ...int) []AmudFile {
	out := make([]AmudFile, len(pages))
	for i, p := range pages {
		a, _ := shas.ToAddress(p)
		out[i] = AmudFile{Page: p, Address: a, Path: filepath.Join("d", "Shabbos", shas.AmudFileName("Shabbos", a))}
	}
	return out
}

var shabbos = shas.CorpusItem{Name: "Shabbos", RemoteID: "37964", TotalPages: 313}

func TestMergeDapimThenFull(t *testing.T) {
	m := &fakeMerger{}
	mo := NewMergeOrchestrator(m, "d")

	// leaf 10 sorts before leaf 9 as a string; order must stay numeric
	res, err := mo.Merge(context.Background(), shabbos, "Range_9-10", amudim(18, 17, 16, 15), MergePlan{MergeAllIntoOne: true, MergeSidesIntoLeaf: true})
	require.NoError(t, err)

	require.Len(t, m.calls, 3)
	assert.Equal(t, []string{"d/Shabbos/Shabbos_Daf9_Amuda.pdf", "d/Shabbos/Shabbos_Daf9_Amudb.pdf"}, m.calls[0].inputs)
	assert.Equal(t, "d/Shabbos/Shabbos_Daf9.pdf", m.calls[0].output)
	assert.Equal(t, "d/Shabbos/Shabbos_Daf10.pdf", m.calls[1].output)
	assert.Equal(t, []string{"d/Shabbos/Shabbos_Daf9.pdf", "d/Shabbos/Shabbos_Daf10.pdf"}, m.calls[2].inputs)
	assert.Equal(t, "d/Shabbos_Range_9-10_Full.pdf", m.calls[2].output)

	assert.Equal(t, "d/Shabbos_Range_9-10_Full.pdf", res.FinalPath)
	assert.Len(t, res.LeafPaths, 2)
	assert.Len(t, res.Deletable, 4)
	assert.Empty(t, res.Failures)
}

func TestMergeKeepIntermediates(t *testing.T) {
	mo := NewMergeOrchestrator(&fakeMerger{}, "d")
	res, err := mo.Merge(context.Background(), shabbos, "All", amudim(1, 2), MergePlan{MergeSidesIntoLeaf: true, KeepIntermediates: true})
	require.NoError(t, err)
	assert.Len(t, res.LeafPaths, 1)
	assert.Empty(t, res.Deletable)
	assert.Empty(t, res.FinalPath)
}

func TestMergeFailedLeafKeepsSides(t *testing.T) {
	m := &fakeMerger{fail: map[string]error{"Shabbos_Daf2.pdf": errors.New("corrupt")}}
	mo := NewMergeOrchestrator(m, "d")

	res, err := mo.Merge(context.Background(), shabbos, "All", amudim(1, 2, 3, 4), MergePlan{MergeAllIntoOne: true, MergeSidesIntoLeaf: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"d/Shabbos/Shabbos_Daf3.pdf"}, res.LeafPaths)
	assert.Equal(t, []string{"d/Shabbos/Shabbos_Daf3_Amuda.pdf", "d/Shabbos/Shabbos_Daf3_Amudb.pdf"}, res.Deletable)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Error(), "Shabbos_Daf2.pdf")
	assert.Equal(t, []string{"d/Shabbos/Shabbos_Daf3.pdf"}, m.calls[2].inputs)
}

func TestMergeFullOnlyUsesAmudim(t *testing.T) {
	m := &fakeMerger{}
	mo := NewMergeOrchestrator(m, "d")
	res, err := mo.Merge(context.Background(), shabbos, "Individual_Selection", amudim(20, 3), MergePlan{MergeAllIntoOne: true})
	require.NoError(t, err)
	require.Len(t, m.calls, 1)
	assert.Equal(t, []string{"d/Shabbos/Shabbos_Daf3_Amuda.pdf", "d/Shabbos/Shabbos_Daf11_Amudb.pdf"}, m.calls[0].inputs)
	assert.Empty(t, res.Deletable)
}

func TestMergeFullFailureIsRecorded(t *testing.T) {
	m := &fakeMerger{fail: map[string]error{"Shabbos_All_Full.pdf": pdfmerge.ErrNoValidInputs}}
	res, err := NewMergeOrchestrator(m, "d").Merge(context.Background(), shabbos, "All", amudim(1), MergePlan{MergeAllIntoOne: true})
	require.NoError(t, err)
	assert.Empty(t, res.FinalPath)
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0].Err, pdfmerge.ErrNoValidInputs)
}

func TestMergeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &fakeMerger{}
	_, err := NewMergeOrchestrator(m, "d").Merge(ctx, shabbos, "All", amudim(1, 2), MergePlan{MergeSidesIntoLeaf: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.calls)
}
