package orchestrator

import (
	"fmt"
	"strings"
	"time"
)

// Report summarises a finished job.
type Report struct {
	JobID        string        `json:"job_id,omitempty"`
	Masechta     string        `json:"masechta"`
	Descriptor   string        `json:"selection"`
	Requested    int           `json:"requested"`
	Downloaded   int           `json:"downloaded"`
	CacheHits    int           `json:"cache_hits"`
	Missed       []int         `json:"missed,omitempty"`
	Failed       []int         `json:"failed,omitempty"`
	LeafFiles    []string      `json:"daf_files,omitempty"`
	FinalPath    string        `json:"final_path,omitempty"`
	PublishedURL string        `json:"published_url,omitempty"`
	Deleted      int           `json:"deleted"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	Aborted      bool          `json:"aborted,omitempty"`
	Errors       []string      `json:"errors,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

// Available is the number of requested amudim now on disk.
func (r Report) Available() int { return r.Downloaded + r.CacheHits }

// Result is the job state a front-end reports: completed, cancelled or aborted.
func (r Report) Result() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Aborted:
		return "aborted"
	}
	return "completed"
}

// Summary is a human readable multi-line summary.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %d amudim requested, %d downloaded, %d already on disk",
		r.Masechta, r.Descriptor, r.Requested, r.Downloaded, r.CacheHits)
	if len(r.Missed) > 0 {
		fmt.Fprintf(&b, "\n  not found at source: pages %s", joinInts(r.Missed))
	}
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, "\n  failed: pages %s", joinInts(r.Failed))
	}
	if len(r.LeafFiles) > 0 {
		fmt.Fprintf(&b, "\n  merged %d dapim", len(r.LeafFiles))
	}
	if r.FinalPath != "" {
		fmt.Fprintf(&b, "\n  full PDF: %s", r.FinalPath)
	}
	if r.PublishedURL != "" {
		fmt.Fprintf(&b, "\n  published: %s", r.PublishedURL)
	}
	if r.Deleted > 0 {
		fmt.Fprintf(&b, "\n  removed %d intermediate files", r.Deleted)
	}
	switch {
	case r.Cancelled:
		b.WriteString("\n  cancelled before completion")
	case r.Aborted:
		b.WriteString("\n  stopped after the first failed page")
	}
	return b.String()
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = fmt.Sprint(n)
	}
	return strings.Join(s, ", ")
}
