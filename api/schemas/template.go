package schemas

import "context"

// PaginationStrategy selects how the engine advances between pages.
type PaginationStrategy string

const (
	PaginateNext   PaginationStrategy = "next"
	PaginateScroll PaginationStrategy = "scroll"
)

// NextButtonConfig configures the "next" pagination strategy.
type NextButtonConfig struct {
	ObjectType SelectorType `json:"object_type" yaml:"object_type"`
	Object     string       `json:"object" yaml:"object"`
	WaitMs     int          `json:"wait,omitempty" yaml:"wait,omitempty"`
}

// ScrollConfig configures the "scroll" pagination strategy. A zero Offset
// means one viewport height per advance.
type ScrollConfig struct {
	Offset  int `json:"offset,omitempty" yaml:"offset,omitempty"`
	DelayMs int `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// PaginationConfig describes how and when the engine moves to a new page
// relative to data collection.
//
// Default ordering is collect-then-advance. PaginationFirst advances before
// collecting (pages after the first). PaginateAllFirst advances through
// every page without collecting, then collects once against the final page
// state, for sites that accumulate all content in a single DOM.
type PaginationConfig struct {
	Strategy         PaginationStrategy `json:"strategy" yaml:"strategy"`
	NextButton       *NextButtonConfig  `json:"nextButton,omitempty" yaml:"nextButton,omitempty"`
	Scroll           *ScrollConfig      `json:"scroll,omitempty" yaml:"scroll,omitempty"`
	MaxPages         int                `json:"maxPages,omitempty" yaml:"maxPages,omitempty"`
	PaginationFirst  bool               `json:"paginationFirst,omitempty" yaml:"paginationFirst,omitempty"`
	PaginateAllFirst bool               `json:"paginateAllFirst,omitempty" yaml:"paginateAllFirst,omitempty"`
}

// TabTemplate is one logical browsing session's plan. A flat Steps list is
// normalized into PerPageSteps at load time so the engine only ever sees
// the init/perPage shape.
type TabTemplate struct {
	Tab          string            `json:"tab" yaml:"tab"`
	InitSteps    []*Step           `json:"initSteps,omitempty" yaml:"initSteps,omitempty"`
	PerPageSteps []*Step           `json:"perPageSteps,omitempty" yaml:"perPageSteps,omitempty"`
	Steps        []*Step           `json:"steps,omitempty" yaml:"steps,omitempty"`
	Pagination   *PaginationConfig `json:"pagination,omitempty" yaml:"pagination,omitempty"`
}

// Record is one completed collector snapshot, keyed by declared output keys.
type Record map[string]any

// ResultCallback receives each record as it is produced, before it is
// appended to the batch sequence. It may block; the engine waits for it.
type ResultCallback func(ctx context.Context, record Record, index int) error

// BrowserOptions is the launch configuration handed to the browser manager.
type BrowserOptions struct {
	Headless        bool `json:"headless" yaml:"headless" mapstructure:"headless"`
	IgnoreTLSErrors bool `json:"ignoreTLSErrors,omitempty" yaml:"ignoreTLSErrors,omitempty" mapstructure:"ignore_tls_errors"`

	Proxy        string   `json:"proxy,omitempty" yaml:"proxy,omitempty" mapstructure:"proxy"`
	SlowMotionMs int      `json:"slowMo,omitempty" yaml:"slowMo,omitempty" mapstructure:"slow_mo"`
	Args         []string `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
}

// RunOptions configures one engine invocation. It is owned by the template
// runner and never mutated during a run.
type RunOptions struct {
	Browser  BrowserOptions
	OnResult ResultCallback

	// RateLimit caps page navigations and pagination advances per second.
	// Zero disables limiting.
	RateLimit float64
}
