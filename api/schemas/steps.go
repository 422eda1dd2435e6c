package schemas

// SelectorType identifies how a step's target selector is interpreted.
type SelectorType string

const (
	SelectorID    SelectorType = "id"
	SelectorClass SelectorType = "class"
	SelectorTag   SelectorType = "tag"
	SelectorXPath SelectorType = "xpath"
)

// Valid reports whether the selector type is one of the closed set.
func (s SelectorType) Valid() bool {
	switch s {
	case SelectorID, SelectorClass, SelectorTag, SelectorXPath, "":
		return true
	}
	return false
}

// DataType selects what is extracted from a matched element.
type DataType string

const (
	DataText      DataType = "text"
	DataHTML      DataType = "html"
	DataValue     DataType = "value"
	DataAttribute DataType = "attribute"
	DataDefault   DataType = "default"
)

// Action is the closed enumeration of step kinds. Unknown actions are
// rejected at template-load time, never at execution time.
type Action string

const (
	ActionNavigate          Action = "navigate"
	ActionInput             Action = "input"
	ActionClick             Action = "click"
	ActionData              Action = "data"
	ActionScroll            Action = "scroll"
	ActionEventDownload     Action = "eventBaseDownload"
	ActionForEach           Action = "foreach"
	ActionOpen              Action = "open"
	ActionSavePDF           Action = "savePDF"
	ActionPrintToPDF        Action = "printToPDF"
	ActionDownloadPDF       Action = "downloadPDF"
	ActionDownloadFile      Action = "downloadFile"
	ActionReload            Action = "reload"
	ActionGetURL            Action = "getUrl"
	ActionGetTitle          Action = "getTitle"
	ActionGetMeta           Action = "getMeta"
	ActionGetCookies        Action = "getCookies"
	ActionSetCookies        Action = "setCookies"
	ActionGetLocalStorage   Action = "getLocalStorage"
	ActionSetLocalStorage   Action = "setLocalStorage"
	ActionGetSessionStorage Action = "getSessionStorage"
	ActionSetSessionStorage Action = "setSessionStorage"
	ActionGetViewportSize   Action = "getViewportSize"
	ActionSetViewportSize   Action = "setViewportSize"
	ActionScreenshot        Action = "screenshot"
	ActionWaitForSelector   Action = "waitForSelector"
	ActionEvaluate          Action = "evaluate"
)

// actions is the authoritative set used by template validation.
var actions = map[Action]struct{}{
	ActionNavigate: {}, ActionInput: {}, ActionClick: {}, ActionData: {},
	ActionScroll: {}, ActionEventDownload: {}, ActionForEach: {}, ActionOpen: {},
	ActionSavePDF: {}, ActionPrintToPDF: {}, ActionDownloadPDF: {}, ActionDownloadFile: {},
	ActionReload: {}, ActionGetURL: {}, ActionGetTitle: {}, ActionGetMeta: {},
	ActionGetCookies: {}, ActionSetCookies: {}, ActionGetLocalStorage: {},
	ActionSetLocalStorage: {}, ActionGetSessionStorage: {}, ActionSetSessionStorage: {},
	ActionGetViewportSize: {}, ActionSetViewportSize: {}, ActionScreenshot: {},
	ActionWaitForSelector: {}, ActionEvaluate: {},
}

// Valid reports whether the action is part of the closed enumeration.
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// FallbackSelector is one alternate (type, value) pair tried in order when
// the primary selector matches nothing.
type FallbackSelector struct {
	ObjectType SelectorType `json:"object_type" yaml:"object_type" mapstructure:"object_type"`
	Object     string       `json:"object" yaml:"object" mapstructure:"object"`
}

// RandomDelay describes a uniform pre-action delay range in milliseconds.
type RandomDelay struct {
	MinMs int `json:"min" yaml:"min" mapstructure:"min"`
	MaxMs int `json:"max" yaml:"max" mapstructure:"max"`
}

// Step is one node of a workflow tree. Pointer fields distinguish "unset"
// from an explicit false/zero so per-action defaults can apply.
type Step struct {
	ID          string       `json:"id" yaml:"id"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	ObjectType  SelectorType `json:"object_type,omitempty" yaml:"object_type,omitempty"`
	Object      string       `json:"object,omitempty" yaml:"object,omitempty"`
	Action      Action       `json:"action" yaml:"action"`
	Value       string       `json:"value,omitempty" yaml:"value,omitempty"`
	Key         string       `json:"key,omitempty" yaml:"key,omitempty"`
	DataType    DataType     `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	WaitMs      int          `json:"wait,omitempty" yaml:"wait,omitempty"`

	TerminateOnError bool  `json:"terminateonerror,omitempty" yaml:"terminateonerror,omitempty"`
	SkipOnError      bool  `json:"skipOnError,omitempty" yaml:"skipOnError,omitempty"`
	ContinueOnEmpty  *bool `json:"continueOnEmpty,omitempty" yaml:"continueOnEmpty,omitempty"`

	SubSteps   []*Step `json:"subSteps,omitempty" yaml:"subSteps,omitempty"`
	AutoScroll *bool   `json:"autoScroll,omitempty" yaml:"autoScroll,omitempty"`

	// Retry policy, local to one invocation of this step.
	Retry        int `json:"retry,omitempty" yaml:"retry,omitempty"`
	RetryDelayMs int `json:"retryDelay,omitempty" yaml:"retryDelay,omitempty"`

	// Conditional gating. Both are JavaScript expressions evaluated in page
	// context; skipIf is checked before onlyIf.
	SkipIf string `json:"skipIf,omitempty" yaml:"skipIf,omitempty"`
	OnlyIf string `json:"onlyIf,omitempty" yaml:"onlyIf,omitempty"`

	// Auxiliary element wait performed before the action.
	WaitForSelector          string `json:"waitForSelector,omitempty" yaml:"waitForSelector,omitempty"`
	WaitForSelectorTimeoutMs int    `json:"waitForSelectorTimeout,omitempty" yaml:"waitForSelectorTimeout,omitempty"`
	WaitForSelectorState     string `json:"waitForSelectorState,omitempty" yaml:"waitForSelectorState,omitempty"`

	FallbackSelectors []FallbackSelector `json:"fallbackSelectors,omitempty" yaml:"fallbackSelectors,omitempty"`

	// Click behavior.
	ClickModifiers []string `json:"clickModifiers,omitempty" yaml:"clickModifiers,omitempty"`
	DoubleClick    bool     `json:"doubleClick,omitempty" yaml:"doubleClick,omitempty"`
	ForceClick     bool     `json:"forceClick,omitempty" yaml:"forceClick,omitempty"`
	RightClick     bool     `json:"rightClick,omitempty" yaml:"rightClick,omitempty"`

	// Input behavior.
	ClearBeforeInput *bool `json:"clearBeforeInput,omitempty" yaml:"clearBeforeInput,omitempty"`
	InputDelayMs     int   `json:"inputDelay,omitempty" yaml:"inputDelay,omitempty"`

	// Extraction pipeline: regex capture, then transform, then default.
	Required     bool   `json:"required,omitempty" yaml:"required,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Regex        string `json:"regex,omitempty" yaml:"regex,omitempty"`
	RegexGroup   *int   `json:"regexGroup,omitempty" yaml:"regexGroup,omitempty"`
	Transform    string `json:"transform,omitempty" yaml:"transform,omitempty"`

	// Step-level timeout; exceeding it is an ordinary step failure.
	TimeoutMs int `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Navigation behavior for navigate/reload.
	WaitUntil string `json:"waitUntil,omitempty" yaml:"waitUntil,omitempty"`

	RandomDelay *RandomDelay `json:"randomDelay,omitempty" yaml:"randomDelay,omitempty"`

	RequireVisible *bool `json:"requireVisible,omitempty" yaml:"requireVisible,omitempty"`
	RequireEnabled bool  `json:"requireEnabled,omitempty" yaml:"requireEnabled,omitempty"`
}

// Clone returns a deep copy of the step, including its subtree.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	c := *s
	if s.ContinueOnEmpty != nil {
		v := *s.ContinueOnEmpty
		c.ContinueOnEmpty = &v
	}
	if s.AutoScroll != nil {
		v := *s.AutoScroll
		c.AutoScroll = &v
	}
	if s.ClearBeforeInput != nil {
		v := *s.ClearBeforeInput
		c.ClearBeforeInput = &v
	}
	if s.RegexGroup != nil {
		v := *s.RegexGroup
		c.RegexGroup = &v
	}
	if s.RequireVisible != nil {
		v := *s.RequireVisible
		c.RequireVisible = &v
	}
	if s.RandomDelay != nil {
		v := *s.RandomDelay
		c.RandomDelay = &v
	}
	if len(s.FallbackSelectors) > 0 {
		c.FallbackSelectors = append([]FallbackSelector(nil), s.FallbackSelectors...)
	}
	if len(s.ClickModifiers) > 0 {
		c.ClickModifiers = append([]string(nil), s.ClickModifiers...)
	}
	if len(s.SubSteps) > 0 {
		c.SubSteps = make([]*Step, len(s.SubSteps))
		for i, sub := range s.SubSteps {
			c.SubSteps[i] = sub.Clone()
		}
	}
	return &c
}

// Selector is the (type, value) pair a step or pagination config targets.
type Selector struct {
	Type  SelectorType
	Value string
}
