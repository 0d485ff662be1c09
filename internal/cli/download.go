package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/local/shasdl/internal/orchestrator"
	"github.com/local/shasdl/internal/shas"
)

type downloadFlags struct {
	masechta      string
	by            string
	mode          string
	start         string
	end           string
	items         string
	mergeAll      bool
	mergeDapim    bool
	keep          bool
	stopOnFailure bool
	noProgress    bool
}

func newDownloadCmd(a *app) *cobra.Command {
	var fl downloadFlags
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a selection of a masechta",
		Example: `  shasdl download -m Makkos --merge-dapim --merge-all
  shasdl download -m Brachos --mode range --start 2 --end 10
  shasdl download -m Shabbos --by amud --mode individual --items 2b,5a,10b`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, err := fl.selection()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("stop-on-failure") {
				fl.stopOnFailure = a.cfg.Fetch.StopOnFirstFailure
			}
			job := orchestrator.Job{
				ID:                 uuid.NewString(),
				Selection:          spec,
				Plan:               orchestrator.MergePlan{MergeAllIntoOne: fl.mergeAll, MergeSidesIntoLeaf: fl.mergeDapim, KeepIntermediates: fl.keep},
				StopOnFirstFailure: fl.stopOnFailure,
			}
			return a.run(cmd.Context(), job, cmd.OutOrStdout(), cmd.ErrOrStderr(), !fl.noProgress)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&fl.masechta, "masechta", "m", "", "masechta name, e.g. Brachos")
	f.StringVar(&fl.by, "by", "daf", "select by daf or amud")
	f.StringVar(&fl.mode, "mode", "all", "all, range or individual")
	f.StringVar(&fl.start, "start", "", "range start (daf like 12, or amud like 12b)")
	f.StringVar(&fl.end, "end", "", "range end (inclusive)")
	f.StringVar(&fl.items, "items", "", "comma separated dapim or amudim for individual mode")
	f.BoolVar(&fl.mergeAll, "merge-all", false, "merge the whole selection into one PDF")
	f.BoolVar(&fl.mergeDapim, "merge-dapim", false, "merge each daf's two amudim into one PDF")
	f.BoolVar(&fl.keep, "keep", false, "keep amud PDFs after merging them into dapim")
	f.BoolVar(&fl.stopOnFailure, "stop-on-failure", false, "stop at the first page that cannot be downloaded")
	f.BoolVar(&fl.noProgress, "no-progress", false, "do not draw a progress bar")
	_ = cmd.MarkFlagRequired("masechta")
	return cmd
}

func (fl downloadFlags) selection() (shas.SelectionSpec, error) {
	by, err := shas.ParseAddressing(fl.by)
	if err != nil {
		return shas.SelectionSpec{}, err
	}
	mode, err := shas.ParseMode(fl.mode)
	if err != nil {
		return shas.SelectionSpec{}, err
	}
	return shas.SelectionSpec{
		Masechta:   fl.masechta,
		Addressing: by,
		Mode:       mode,
		RangeStart: fl.start,
		RangeEnd:   fl.end,
		Items:      shas.SplitItems(fl.items),
	}, nil
}

// run executes job and prints its report to out. Validation happens before
// any client is built so bad input never touches the network.
func (a *app) run(ctx context.Context, job orchestrator.Job, out, progress io.Writer, showProgress bool) error {
	cat, err := a.catalog()
	if err != nil {
		return err
	}
	if _, err := shas.NewResolver(cat).Resolve(job.Selection); err != nil {
		return err
	}
	pipe, _, err := a.pipeline(ctx, nil)
	if err != nil {
		return err
	}
	if showProgress {
		job.Progress = newBarProgress(progress)
	}
	rep, err := pipe.Run(ctx, job)
	if err != nil {
		return err
	}
	if rep.Requested == 0 {
		fmt.Fprintln(out, "No pages selected for this masechta.")
		return nil
	}
	fmt.Fprintln(out, rep.Summary())
	fmt.Fprintf(out, "Files are located in: %s\n", shas.MasechtaDir(a.cfg.Fetch.OutputDir, rep.Masechta))
	if rep.Aborted {
		return ErrAborted
	}
	return ctx.Err()
}
