// Package registry loads section and question descriptors from the
// filesystem at startup, compiles their criteria into the rules engine, and
// serves O(1) lookups for the evaluator. The registry is immutable after
// Load and freely shared.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lendvoice/question-engine/pkg/apperrors"
	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/rules"
)

// Registry owns the loaded question and section descriptors and their
// decision-table handles for the process lifetime.
type Registry struct {
	byID        map[string]*models.Question
	byLevel     map[models.EntityLevel][]*models.Question
	sections    []*models.Section
	sectionByID map[string]*models.Section
	perSection  map[string]int
}

// Load scans <root>/sections/*.yaml and <root>/questions/**/*.yaml, compiles
// every question's criteria, and installs the decision tables in the engine
// under "question:<id>". Any validation or compile failure aborts with the
// offending file path; partial startup is forbidden.
func Load(root string, engine *rules.Engine, logger *zap.Logger) (*Registry, error) {
	logger = logger.Named("registry")

	r := &Registry{
		byID:        make(map[string]*models.Question),
		byLevel:     make(map[models.EntityLevel][]*models.Question),
		sectionByID: make(map[string]*models.Section),
		perSection:  make(map[string]int),
	}

	if err := r.loadSections(filepath.Join(root, "sections")); err != nil {
		return nil, err
	}
	if err := r.loadQuestions(filepath.Join(root, "questions"), engine); err != nil {
		return nil, err
	}

	sort.Slice(r.sections, func(i, j int) bool {
		return r.sections[i].Sequence < r.sections[j].Sequence
	})
	for _, questions := range r.byLevel {
		sort.Slice(questions, func(i, j int) bool {
			si := r.sectionByID[questions[i].Section].Sequence
			sj := r.sectionByID[questions[j].Section].Sequence
			if si != sj {
				return si < sj
			}
			return questions[i].Ordinal < questions[j].Ordinal
		})
	}

	logger.Info("configuration loaded",
		zap.Int("sections", len(r.sections)),
		zap.Int("questions", len(r.byID)),
		zap.Int("rules", engine.RuleCount()))

	return r, nil
}

func (r *Registry) loadSections(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("scan sections: %w", err)
	}
	if len(paths) == 0 {
		return &apperrors.ConfigError{Path: dir, Reason: "no section descriptors found"}
	}
	sort.Strings(paths)

	bySequence := make(map[int]string)
	for _, path := range paths {
		var section models.Section
		if err := decodeYAML(path, &section); err != nil {
			return err
		}
		if section.ID == "" || section.Name == "" {
			return &apperrors.ConfigError{Path: path, Reason: "section requires id and name"}
		}
		if _, dup := r.sectionByID[section.ID]; dup {
			return &apperrors.ConfigError{Path: path, Reason: "duplicate section id " + section.ID}
		}
		if prior, tie := bySequence[section.Sequence]; tie {
			return &apperrors.ConfigError{
				Path:   path,
				Reason: fmt.Sprintf("sequence %d already used by section %s; ties are forbidden", section.Sequence, prior),
			}
		}
		bySequence[section.Sequence] = section.ID

		s := section
		r.sectionByID[s.ID] = &s
		r.sections = append(r.sections, &s)
	}
	return nil
}

func (r *Registry) loadQuestions(dir string, engine *rules.Engine) error {
	found := false
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		found = true
		return r.loadQuestion(path, engine)
	})
	if walkErr != nil {
		var configErr *apperrors.ConfigError
		var compileErr *apperrors.CompileError
		if errors.As(walkErr, &configErr) || errors.As(walkErr, &compileErr) {
			return walkErr
		}
		return fmt.Errorf("scan questions: %w", walkErr)
	}
	if !found {
		return &apperrors.ConfigError{Path: dir, Reason: "no question descriptors found"}
	}
	return nil
}

func (r *Registry) loadQuestion(path string, engine *rules.Engine) error {
	var q models.Question
	if err := decodeYAML(path, &q); err != nil {
		return err
	}

	switch {
	case q.ID == "":
		return &apperrors.ConfigError{Path: path, Reason: "question requires id"}
	case q.Section == "":
		return &apperrors.ConfigError{Path: path, Reason: "question requires section"}
	case q.Instructions == "":
		return &apperrors.ConfigError{Path: path, Reason: "question requires instructions"}
	case q.InputKind == "":
		return &apperrors.ConfigError{Path: path, Reason: "question requires type"}
	}
	if _, err := models.ParseEntityLevel(string(q.Level)); err != nil {
		return &apperrors.ConfigError{Path: path, Reason: err.Error()}
	}
	if _, dup := r.byID[q.ID]; dup {
		return &apperrors.ConfigError{Path: path, Reason: "duplicate question id " + q.ID}
	}
	section, ok := r.sectionByID[q.Section]
	if !ok {
		return &apperrors.ConfigError{Path: path, Reason: "unknown section " + q.Section}
	}
	if q.Flexibility == "" {
		q.Flexibility = models.FlexibilityConversational
	}
	for _, other := range r.byID {
		if other.Section == q.Section && other.Ordinal == q.Ordinal {
			return &apperrors.ConfigError{
				Path:   path,
				Reason: fmt.Sprintf("ordinal %d already used by %s in section %s", q.Ordinal, other.ID, q.Section),
			}
		}
	}

	q.AlwaysApplicable = strings.TrimSpace(q.Criteria) == ""

	table, err := rules.Compile(q.Criteria)
	if err != nil {
		var compileErr *apperrors.CompileError
		if errors.As(err, &compileErr) {
			compileErr.Path = path
			return compileErr
		}
		return fmt.Errorf("compile criteria %s: %w", path, err)
	}
	if err := engine.Compile(q.RuleID(), table); err != nil {
		return fmt.Errorf("install rule for %s: %w", path, err)
	}

	stored := q
	r.byID[stored.ID] = &stored
	r.byLevel[stored.Level] = append(r.byLevel[stored.Level], &stored)
	r.perSection[section.ID]++
	return nil
}

func decodeYAML(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return &apperrors.ConfigError{Path: path, Reason: err.Error()}
	}
	return nil
}

// ByID returns the question for an id.
func (r *Registry) ByID(id string) (*models.Question, bool) {
	q, ok := r.byID[id]
	return q, ok
}

// ByLevel returns the level's questions pre-sorted by section sequence then
// ordinal. Callers must not mutate the slice.
func (r *Registry) ByLevel(level models.EntityLevel) []*models.Question {
	return r.byLevel[level]
}

// Sections returns all sections sorted by sequence.
func (r *Registry) Sections() []*models.Section {
	return r.sections
}

// SectionByID returns a section descriptor.
func (r *Registry) SectionByID(id string) (*models.Section, bool) {
	s, ok := r.sectionByID[id]
	return s, ok
}

// QuestionsInSection returns how many questions belong to a section.
func (r *Registry) QuestionsInSection(sectionID string) int {
	return r.perSection[sectionID]
}

// QuestionCount returns the number of loaded questions.
func (r *Registry) QuestionCount() int {
	return len(r.byID)
}

// KnownQuestion reports whether an id names a loaded question. Used to keep
// LoanState.Answered a subset of the known question ids.
func (r *Registry) KnownQuestion(id string) bool {
	_, ok := r.byID[id]
	return ok
}
