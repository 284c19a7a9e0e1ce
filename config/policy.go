package config

import "fmt"

// ErrorCategory groups failures that share a continue/abort decision.
type ErrorCategory int

const (
	CategoryDocument ErrorCategory = iota
	CategoryTranscript
	CategoryMapping
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryDocument:
		return "document"
	case CategoryTranscript:
		return "transcript"
	case CategoryMapping:
		return "mapping"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// ErrorAction is what a pass does after an error of a category.
type ErrorAction int

const (
	Continue ErrorAction = iota
	Abort
)

func (a ErrorAction) String() string {
	if a == Abort {
		return "abort"
	}
	return "continue"
}

// ErrorPolicy is the resolved category → action table. Unknown categories abort.
type ErrorPolicy map[ErrorCategory]ErrorAction

// Action returns the configured action for c.
func (p ErrorPolicy) Action(c ErrorCategory) ErrorAction {
	if a, ok := p[c]; ok {
		return a
	}
	return Abort
}

// ShouldContinue reports whether errors of category c are logged and skipped.
func (p ErrorPolicy) ShouldContinue(c ErrorCategory) bool {
	return p.Action(c) == Continue
}

// Policy resolves the continue_on_* flags into an ErrorPolicy.
func (e ErrorHandlingConfig) Policy() ErrorPolicy {
	return ErrorPolicy{
		CategoryDocument:   actionFor(e.ContinueOnDocumentError),
		CategoryTranscript: actionFor(e.ContinueOnTranscriptError),
		CategoryMapping:    actionFor(e.ContinueOnMappingError),
	}
}

// ContinueAll is the policy with every category set to Continue.
func ContinueAll() ErrorPolicy {
	return ErrorPolicy{CategoryDocument: Continue, CategoryTranscript: Continue, CategoryMapping: Continue}
}

func actionFor(cont bool) ErrorAction {
	if cont {
		return Continue
	}
	return Abort
}
