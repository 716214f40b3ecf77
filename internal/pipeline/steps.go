package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/capsule/internal/crawler"
	"github.com/nao1215/capsule/internal/lists"
	"github.com/nao1215/capsule/internal/model"
)

// Settings are the knobs shared by every sync step.
type Settings struct {
	// Depth is how many levels of links are followed below list members.
	Depth int
	// CacheValidity is the age after which list members are refreshed.
	CacheValidity time.Duration
}

// SubscriptionsStep refreshes subscribed lists. Newly cached links are
// queued on the tour.
type SubscriptionsStep struct {
	crawler  *crawler.Crawler
	settings Settings
}

// NewSubscriptionsStep creates the subscriptions step.
func NewSubscriptionsStep(c *crawler.Crawler, s Settings) *SubscriptionsStep {
	return &SubscriptionsStep{crawler: c, settings: s}
}

// Name returns the step name.
func (s *SubscriptionsStep) Name() string {
	return "subscriptions"
}

// Do executes the step.
func (s *SubscriptionsStep) Do(ctx context.Context, report *model.SyncReport) error {
	plan, err := s.crawler.Plan()
	if err != nil {
		return err
	}
	policy := crawler.ListPolicy{
		Validity:     s.settings.CacheValidity,
		Depth:        s.settings.Depth,
		TourChildren: true,
	}
	return fetchLists(ctx, s.crawler, plan.Subscriptions, policy, report)
}

// ToFetchStep fetches everything queued for later, whatever the age of
// its cache, and moves what it could cache to the tour.
type ToFetchStep struct {
	crawler  *crawler.Crawler
	settings Settings
	now      func() time.Time
}

// ToFetchStepOption configures a ToFetchStep.
type ToFetchStepOption func(*ToFetchStep)

// WithClock overrides the clock used to compute the validity window.
func WithClock(now func() time.Time) ToFetchStepOption {
	return func(s *ToFetchStep) {
		s.now = now
	}
}

// NewToFetchStep creates the to_fetch step.
func NewToFetchStep(c *crawler.Crawler, s Settings, opts ...ToFetchStepOption) *ToFetchStep {
	step := &ToFetchStep{crawler: c, settings: s, now: time.Now}
	for _, opt := range opts {
		opt(step)
	}
	return step
}

// Name returns the step name.
func (s *ToFetchStep) Name() string {
	return "to_fetch"
}

// Do executes the step. Only resources cached since the sync started
// count as fresh.
func (s *ToFetchStep) Do(ctx context.Context, report *model.SyncReport) error {
	validity := max(s.now().Sub(report.StartedAt), time.Nanosecond)
	policy := crawler.ListPolicy{
		Validity:      validity,
		Depth:         s.settings.Depth,
		TourAndRemove: true,
	}
	return fetchLists(ctx, s.crawler, []string{lists.ToFetch}, policy, report)
}

// NormalListsStep refreshes every list that is neither subscribed nor
// frozen, bookmarks included.
type NormalListsStep struct {
	crawler  *crawler.Crawler
	settings Settings
}

// NewNormalListsStep creates the normal lists step.
func NewNormalListsStep(c *crawler.Crawler, s Settings) *NormalListsStep {
	return &NormalListsStep{crawler: c, settings: s}
}

// Name returns the step name.
func (s *NormalListsStep) Name() string {
	return "lists"
}

// Do executes the step.
func (s *NormalListsStep) Do(ctx context.Context, report *model.SyncReport) error {
	plan, err := s.crawler.Plan()
	if err != nil {
		return err
	}
	policy := crawler.ListPolicy{Validity: s.settings.CacheValidity, Depth: s.settings.Depth}
	return fetchLists(ctx, s.crawler, plan.Normal, policy, report)
}

// FrozenListsStep fetches the members of frozen lists that were never
// cached.
type FrozenListsStep struct {
	crawler  *crawler.Crawler
	settings Settings
}

// NewFrozenListsStep creates the frozen lists step.
func NewFrozenListsStep(c *crawler.Crawler, s Settings) *FrozenListsStep {
	return &FrozenListsStep{crawler: c, settings: s}
}

// Name returns the step name.
func (s *FrozenListsStep) Name() string {
	return "frozen"
}

// Do executes the step.
func (s *FrozenListsStep) Do(ctx context.Context, report *model.SyncReport) error {
	plan, err := s.crawler.Plan()
	if err != nil {
		return err
	}
	policy := crawler.ListPolicy{Depth: s.settings.Depth}
	return fetchLists(ctx, s.crawler, plan.Frozen, policy, report)
}

// TourStep refreshes the tour. It runs last because every other step may
// add to it.
type TourStep struct {
	crawler  *crawler.Crawler
	settings Settings
}

// NewTourStep creates the tour step.
func NewTourStep(c *crawler.Crawler, s Settings) *TourStep {
	return &TourStep{crawler: c, settings: s}
}

// Name returns the step name.
func (s *TourStep) Name() string {
	return "tour"
}

// Do executes the step.
func (s *TourStep) Do(ctx context.Context, report *model.SyncReport) error {
	policy := crawler.ListPolicy{Validity: s.settings.CacheValidity, Depth: s.settings.Depth}
	return fetchLists(ctx, s.crawler, []string{lists.Tour}, policy, report)
}

func fetchLists(ctx context.Context, c *crawler.Crawler, names []string, policy crawler.ListPolicy, report *model.SyncReport) error {
	report.NoteLists(names...)
	for _, name := range names {
		if err := c.FetchList(ctx, name, policy, report); err != nil {
			return err
		}
	}
	return nil
}

// NewSyncPipeline builds the pipeline running a full sync: subscriptions,
// to_fetch, normal lists, frozen lists and finally the tour.
func NewSyncPipeline(c *crawler.Crawler, s Settings, logger *slog.Logger) *Pipeline {
	p := New(WithLogger(logger), WithContinueOnError(true))
	p.AddSteps(
		NewSubscriptionsStep(c, s),
		NewToFetchStep(c, s),
		NewNormalListsStep(c, s),
		NewFrozenListsStep(c, s),
		NewTourStep(c, s),
	)
	return p
}
