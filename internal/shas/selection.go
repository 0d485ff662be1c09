package shas

import (
	"fmt"
	"sort"
	"strings"
)

// Addressing says whether a selection is expressed in dapim or amudim.
type Addressing int

const (
	ByLeaf Addressing = iota
	BySide
)

func (a Addressing) String() string {
	if a == BySide {
		return "amud"
	}
	return "daf"
}

// ParseAddressing accepts daf/dapim/leaf and amud/amudim/side.
func ParseAddressing(s string) (Addressing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "daf", "dapim", "leaf":
		return ByLeaf, nil
	case "amud", "amudim", "side":
		return BySide, nil
	}
	return ByLeaf, invalid("select_by", s, ErrInvalidMode)
}

// Mode is the selection mode.
type Mode int

const (
	ModeAll Mode = iota
	ModeRange
	ModeIndividual
)

func (m Mode) String() string {
	switch m {
	case ModeRange:
		return "Range"
	case ModeIndividual:
		return "Individual"
	default:
		return "All"
	}
}

// ParseMode accepts all/range/individual (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ModeAll, nil
	case "range":
		return ModeRange, nil
	case "individual":
		return ModeIndividual, nil
	}
	return ModeAll, invalid("mode", s, ErrInvalidMode)
}

// SelectionSpec is the user's declarative intent. Range endpoints and items
// are bare dapim ("12") under ByLeaf and amudim ("12b") under BySide.
type SelectionSpec struct {
	Masechta   string
	Addressing Addressing
	Mode       Mode
	RangeStart string
	RangeEnd   string
	Items      []string
}

// Descriptor names the selection in the merged output file.
func (s SelectionSpec) Descriptor() string {
	switch s.Mode {
	case ModeRange:
		return fmt.Sprintf("Range_%s-%s", strings.TrimSpace(s.RangeStart), strings.TrimSpace(s.RangeEnd))
	case ModeIndividual:
		return "Individual_Selection"
	default:
		return "All"
	}
}

// Resolution is the outcome of resolving a SelectionSpec.
type Resolution struct {
	Corpus CorpusItem
	Pages  []int // sorted, unique, within [1, Corpus.TotalPages]
}

// Resolver turns selections into page sets against a catalog.
type Resolver struct {
	catalog *Catalog
}

func NewResolver(c *Catalog) *Resolver { return &Resolver{catalog: c} }

// Resolve validates spec and returns the pages to fetch. Malformed input fails
// with a ValidationError; pages outside the masechta are dropped silently, so
// an empty page set is a valid result.
func (r *Resolver) Resolve(spec SelectionSpec) (Resolution, error) {
	corpus, err := r.catalog.Lookup(spec.Masechta)
	if err != nil {
		return Resolution{}, err
	}

	raw := make(map[int]struct{})
	add := func(p int) { raw[p] = struct{}{} }
	addLeaf := func(l int) {
		add(ToPage(l, Front))
		add(ToPage(l, Back))
	}

	switch spec.Mode {
	case ModeAll:
		for p := 1; p <= corpus.TotalPages; p++ {
			add(p)
		}

	case ModeRange:
		if strings.TrimSpace(spec.RangeStart) == "" || strings.TrimSpace(spec.RangeEnd) == "" {
			return Resolution{}, invalid("range", spec.RangeStart+"-"+spec.RangeEnd, ErrInvalidRange)
		}
		if spec.Addressing == ByLeaf {
			start, err := ParseLeaf(spec.RangeStart)
			if err != nil {
				return Resolution{}, err
			}
			end, err := ParseLeaf(spec.RangeEnd)
			if err != nil {
				return Resolution{}, err
			}
			if start > end {
				return Resolution{}, invalid("range", fmt.Sprintf("%d-%d", start, end), ErrInvalidRange)
			}
			start, end = max(start, FirstLeaf), min(end, corpus.MaxLeaf())
			for l := start; l <= end; l++ {
				addLeaf(l)
			}
			break
		}
		start, err := ParseAddress(spec.RangeStart)
		if err != nil {
			return Resolution{}, err
		}
		end, err := ParseAddress(spec.RangeEnd)
		if err != nil {
			return Resolution{}, err
		}
		if end.Before(start) {
			return Resolution{}, invalid("range", start.String()+"-"+end.String(), ErrInvalidRange)
		}
		// A start on amud b skips that daf's amud a and an end on amud a skips
		// its amud b, so the range is one contiguous span of pages.
		if start.Leaf < FirstLeaf {
			start = Address{Leaf: FirstLeaf, Side: Front}
		}
		if end.Leaf > corpus.MaxLeaf() {
			end = Address{Leaf: corpus.MaxLeaf(), Side: Back}
		}
		for p := max(start.Page(), 1); p <= min(end.Page(), corpus.TotalPages); p++ {
			add(p)
		}

	case ModeIndividual:
		items := nonBlank(spec.Items)
		if len(items) == 0 {
			return Resolution{}, invalid("items", "", ErrEmptySelection)
		}
		for _, it := range items {
			if spec.Addressing == ByLeaf {
				l, err := ParseLeaf(it)
				if err != nil {
					return Resolution{}, err
				}
				if l >= FirstLeaf && l <= corpus.MaxLeaf() {
					addLeaf(l)
				}
				continue
			}
			a, err := ParseAddress(it)
			if err != nil {
				return Resolution{}, err
			}
			if a.Leaf >= FirstLeaf && a.Leaf <= corpus.MaxLeaf() {
				add(a.Page())
			}
		}

	default:
		return Resolution{}, invalid("mode", spec.Mode.String(), ErrInvalidMode)
	}

	pages := make([]int, 0, len(raw))
	for p := range raw {
		if p >= 1 && p <= corpus.TotalPages {
			pages = append(pages, p)
		}
	}
	sort.Ints(pages)
	return Resolution{Corpus: corpus, Pages: pages}, nil
}

// SplitItems splits a comma separated list of dapim or amudim.
func SplitItems(s string) []string {
	return nonBlank(strings.Split(s, ","))
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
