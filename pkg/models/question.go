package models

// Section is a logical grouping of questions. Sections are loaded once at
// startup and immutable; Sequence is a total order across all sections.
type Section struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Sequence    int    `yaml:"sequence" json:"sequence"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Flexibility says how strictly the conversational layer must match answers.
type Flexibility string

const (
	FlexibilityExact          Flexibility = "exact"
	FlexibilityConversational Flexibility = "conversational"
	FlexibilityInferred       Flexibility = "inferred"
	FlexibilityOptional       Flexibility = "optional"
)

// FormField maps a question answer onto a system-of-record column.
type FormField struct {
	Order       int    `yaml:"order" json:"order"`
	Label       string `yaml:"label" json:"label"`
	AccessField string `yaml:"access_field" json:"access_field"`
	Prepopulate bool   `yaml:"prepopulate" json:"prepopulate"`
}

// Question is a single conversational prompt bound to a compiled rule.
// Instructions may contain {{field}} merge placeholders resolved against the
// entity and loan fields at evaluation time.
type Question struct {
	ID              string      `yaml:"id" json:"id"`
	Name            string      `yaml:"name" json:"name"`
	Section         string      `yaml:"section" json:"section"`
	Ordinal         int         `yaml:"ordinal" json:"ordinal"`
	Level           EntityLevel `yaml:"level" json:"level"`
	Instructions    string      `yaml:"instructions" json:"instructions"`
	InputKind       string      `yaml:"type" json:"type"`
	FormFields      []FormField `yaml:"form_fields" json:"form_fields"`
	Criteria        string      `yaml:"criteria" json:"criteria"`
	Flexibility     Flexibility `yaml:"flexibility" json:"flexibility"`
	Options         []string    `yaml:"options" json:"options,omitempty"`
	CanCombineWith  []string    `yaml:"can_combine_with" json:"can_combine_with,omitempty"`
	ExtractionHints string      `yaml:"extraction_hints" json:"extraction_hints,omitempty"`

	// AlwaysApplicable is derived at load time from an empty criteria string
	// and lets the evaluator bypass the rules engine for the question.
	AlwaysApplicable bool `yaml:"-" json:"-"`
}

// RuleID returns the identifier the question's compiled decision table is
// registered under in the rules engine.
func (q *Question) RuleID() string {
	return "question:" + q.ID
}

// CanCombineAfter reports whether prior is listed in this question's
// can_combine_with set.
func (q *Question) CanCombineAfter(prior string) bool {
	for _, id := range q.CanCombineWith {
		if id == prior {
			return true
		}
	}
	return false
}
