package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/local/shasdl/internal/orchestrator"
	"github.com/local/shasdl/internal/shas"
)

func newInteractiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"i"},
		Short:   "Choose a masechta and selection from numbered prompts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			p := &prompter{in: bufio.NewScanner(cmd.InOrStdin()), out: cmd.OutOrStdout()}
			job, err := p.job(cat)
			if err != nil {
				return err
			}
			job.StopOnFirstFailure = a.cfg.Fetch.StopOnFirstFailure
			fmt.Fprintf(p.out, "\n--- Starting download for %s ---\n", job.Selection.Masechta)
			return a.run(cmd.Context(), job, p.out, cmd.ErrOrStderr(), true)
		},
	}
}

type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// job walks the prompts and returns a job whose selection resolves.
func (p *prompter) job(cat *shas.Catalog) (orchestrator.Job, error) {
	res := shas.NewResolver(cat)
	items := cat.Items()
	fmt.Fprintln(p.out, "Please select a masechta:")
	for i, it := range items {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, it.Name)
	}
	n, err := p.choose(len(items))
	if err != nil {
		return orchestrator.Job{}, err
	}
	corpus := items[n-1]

	spec := shas.SelectionSpec{Masechta: corpus.Name}
	fmt.Fprintln(p.out, "\nSelect by:\n  1. Dapim\n  2. Amudim")
	if n, err = p.choose(2); err != nil {
		return orchestrator.Job{}, err
	}
	if n == 2 {
		spec.Addressing = shas.BySide
	}

	fmt.Fprintln(p.out, "\nSelection mode:\n  1. All\n  2. Range\n  3. Individual")
	if n, err = p.choose(3); err != nil {
		return orchestrator.Job{}, err
	}
	spec.Mode = []shas.Mode{shas.ModeAll, shas.ModeRange, shas.ModeIndividual}[n-1]

	addrs := corpus.Addresses()
	last := addrs[len(addrs)-1]
	for {
		switch {
		case spec.Mode == shas.ModeRange && spec.Addressing == shas.ByLeaf:
			if spec.RangeStart, err = p.line(fmt.Sprintf("Enter start daf (2-%d): ", corpus.MaxLeaf())); err != nil {
				return orchestrator.Job{}, err
			}
			if spec.RangeEnd, err = p.line(fmt.Sprintf("Enter end daf (2-%d): ", corpus.MaxLeaf())); err != nil {
				return orchestrator.Job{}, err
			}
		case spec.Mode == shas.ModeRange:
			if spec.RangeStart, err = p.line(fmt.Sprintf("Enter start amud (2a-%s): ", last)); err != nil {
				return orchestrator.Job{}, err
			}
			if spec.RangeEnd, err = p.line(fmt.Sprintf("Enter end amud (2a-%s): ", last)); err != nil {
				return orchestrator.Job{}, err
			}
		case spec.Mode == shas.ModeIndividual && spec.Addressing == shas.ByLeaf:
			fmt.Fprintf(p.out, "Enter dapim (2-%d), separated by commas:\n", corpus.MaxLeaf())
			s, err := p.line("> ")
			if err != nil {
				return orchestrator.Job{}, err
			}
			spec.Items = shas.SplitItems(s)
		case spec.Mode == shas.ModeIndividual:
			fmt.Fprintln(p.out, "Enter amudim (e.g. 2a, 2b, 3a), separated by commas:")
			s, err := p.line("> ")
			if err != nil {
				return orchestrator.Job{}, err
			}
			spec.Items = shas.SplitItems(s)
		}
		if _, err := res.Resolve(spec); err != nil {
			if !shas.IsValidation(err) {
				return orchestrator.Job{}, err
			}
			fmt.Fprintf(p.out, "Invalid input: %v\n", err)
			continue
		}
		break
	}

	var plan orchestrator.MergePlan
	if plan.MergeAllIntoOne, err = p.yesNo("\nMerge entire selection into one PDF? (y/n): "); err != nil {
		return orchestrator.Job{}, err
	}
	if plan.MergeSidesIntoLeaf, err = p.yesNo("Merge amudim into dapim PDFs? (y/n): "); err != nil {
		return orchestrator.Job{}, err
	}
	if plan.MergeSidesIntoLeaf {
		if plan.KeepIntermediates, err = p.yesNo("Keep individual amud PDFs? (y/n): "); err != nil {
			return orchestrator.Job{}, err
		}
	}
	return orchestrator.Job{ID: uuid.NewString(), Selection: spec, Plan: plan}, nil
}

// choose reads a number in [1, limit], asking again until it gets one.
func (p *prompter) choose(limit int) (int, error) {
	for {
		s, err := p.line(fmt.Sprintf("Enter a number (1-%d): ", limit))
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(s)
		switch {
		case err != nil:
			fmt.Fprintln(p.out, "Invalid input. Please enter a number.")
		case n < 1 || n > limit:
			fmt.Fprintln(p.out, "Invalid number.")
		default:
			return n, nil
		}
	}
}

func (p *prompter) yesNo(prompt string) (bool, error) {
	s, err := p.line(prompt)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(s, "y") || strings.EqualFold(s, "yes"), nil
}

// line prints prompt and returns the next trimmed input line.
func (p *prompter) line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}
