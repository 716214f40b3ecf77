package model

import (
	"slices"
	"time"

	"github.com/nao1215/capsule/internal/protocol"
)

// SyncReport collects what one unattended sync run did.
type SyncReport struct {
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last phase returned.
	FinishedAt time.Time `json:"finished_at"`

	// Depth is the recursion depth used for list members.
	Depth int `json:"depth"`

	// CacheValidity is the age after which caches were refreshed.
	// Zero means only uncached resources were fetched.
	CacheValidity time.Duration `json:"cache_validity"`

	// Phases holds one entry per executed phase, in order.
	Phases []PhaseResult `json:"phases"`

	// Fetched counts network fetches that succeeded.
	Fetched int `json:"fetched"`

	// CachedNew counts resources that had no cache before this run.
	CachedNew int `json:"cached_new"`

	// Skipped counts links that were not fetched because their scheme
	// is local or unsupported.
	Skipped int `json:"skipped"`

	// Toured lists the URLs appended to the tour.
	Toured []string `json:"toured,omitempty"`

	// Errors counts failures by kind name.
	Errors map[string]int `json:"errors,omitempty"`

	// Failures details every failed fetch.
	Failures []Failure `json:"failures,omitempty"`

	// Cancelled is true when the run stopped before all phases ran.
	Cancelled bool `json:"cancelled"`

	// Err holds a phase error that stopped the pipeline.
	Err error `json:"-"`

	// ErrorMessage is the string form of Err.
	ErrorMessage string `json:"error,omitempty"`
}

// PhaseResult summarizes one sync phase.
type PhaseResult struct {
	Name    string   `json:"name"`
	Lists   []string `json:"lists,omitempty"`
	Fetched int      `json:"fetched"`
	Failed  int      `json:"failed"`
}

// Failure is one failed fetch.
type Failure struct {
	URL     string `json:"url"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewSyncReport returns an empty report started at now.
func NewSyncReport(now time.Time, depth int, validity time.Duration) *SyncReport {
	return &SyncReport{
		StartedAt:     now,
		Depth:         depth,
		CacheValidity: validity,
		Errors:        make(map[string]int),
	}
}

// BeginPhase starts counting fetches for a new phase.
func (r *SyncReport) BeginPhase(name string, lists ...string) {
	r.Phases = append(r.Phases, PhaseResult{Name: name, Lists: lists})
}

// NoteLists records the lists crawled by the current phase.
func (r *SyncReport) NoteLists(lists ...string) {
	if p := r.current(); p != nil {
		p.Lists = append(p.Lists, lists...)
	}
}

// current returns the phase being executed, if any.
func (r *SyncReport) current() *PhaseResult {
	if len(r.Phases) == 0 {
		return nil
	}
	return &r.Phases[len(r.Phases)-1]
}

// RecordFetch counts a successful fetch. isNew reports whether nothing
// was cached before.
func (r *SyncReport) RecordFetch(isNew bool) {
	r.Fetched++
	if isNew {
		r.CachedNew++
	}
	if p := r.current(); p != nil {
		p.Fetched++
	}
}

// RecordFailure counts a failed fetch of url under the kind of err.
func (r *SyncReport) RecordFailure(url string, err error) {
	kind := protocol.KindOf(err).String()
	if r.Errors == nil {
		r.Errors = make(map[string]int)
	}
	r.Errors[kind]++
	r.Failures = append(r.Failures, Failure{URL: url, Kind: kind, Message: err.Error()})
	if p := r.current(); p != nil {
		p.Failed++
	}
}

// RecordSkip counts a link that was not fetched.
func (r *SyncReport) RecordSkip() {
	r.Skipped++
}

// RecordTour remembers that url was appended to the tour.
func (r *SyncReport) RecordTour(url string) {
	r.Toured = append(r.Toured, url)
}

// Fail records a phase error.
func (r *SyncReport) Fail(err error) {
	r.Err = err
	r.ErrorMessage = err.Error()
}

// Finish stamps the end of the run.
func (r *SyncReport) Finish(now time.Time) {
	r.FinishedAt = now
}

// Duration returns how long the run took.
func (r *SyncReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ErrorCount returns the total number of failed fetches.
func (r *SyncReport) ErrorCount() int {
	n := 0
	for _, c := range r.Errors {
		n += c
	}
	return n
}

// ErrorKinds returns the kind names with at least one failure, sorted.
func (r *SyncReport) ErrorKinds() []string {
	kinds := make([]string, 0, len(r.Errors))
	for k := range r.Errors {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
