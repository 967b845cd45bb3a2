// Package testhelpers provides shared fixtures for package tests.
package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteConfigTree materializes a configuration tree under a temp dir and
// returns its root. Keys are paths relative to the root.
func WriteConfigTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

// SampleConfigTree writes the standard fixture used across packages: three
// sections and a small question set covering singleton and entity levels,
// merge fields, combinable runs, and criteria-gated questions.
func SampleConfigTree(t *testing.T) string {
	t.Helper()
	return WriteConfigTree(t, map[string]string{
		"sections/applicant.yaml": `id: applicant
name: Applicant
sequence: 1
description: Borrower identity and status
`,
		"sections/employment.yaml": `id: employment
name: Employment
sequence: 2
`,
		"sections/financing.yaml": `id: financing
name: Financing
sequence: 3
`,
		"questions/applicant/citizenship.yaml": `id: Q100
name: Citizenship
section: applicant
ordinal: 1
level: BORROWER
instructions: What is your citizenship status?
type: choice
flexibility: exact
options:
  - US Citizen
  - Permanent Resident
  - Non-Permanent Resident
form_fields:
  - order: 1
    label: Citizenship Type
    access_field: citizenship_type
    prepopulate: false
criteria: ""
`,
		"questions/applicant/visa.yaml": `id: Q101
name: Visa Type
section: applicant
ordinal: 2
level: BORROWER
instructions: What visa are you on?
type: text
flexibility: exact
can_combine_with:
  - Q100
form_fields:
  - order: 1
    label: Visa Type
    access_field: visa_type
    prepopulate: false
criteria: Citizenship Type is Non-Permanent Resident
`,
		"questions/employment/hours.yaml": `id: Q200
name: Weekly Hours
section: employment
ordinal: 1
level: JOB
instructions: How many hours at {{employer_name}}?
type: number
flexibility: conversational
form_fields:
  - order: 1
    label: Weekly Hours
    access_field: weekly_hours
    prepopulate: false
criteria: ""
`,
		"questions/financing/purpose.yaml": `id: Q300
name: Loan Purpose
section: financing
ordinal: 1
level: PROPOSAL
instructions: Is this a purchase or a refinance?
type: choice
flexibility: exact
options:
  - Purchase
  - Refinance
form_fields:
  - order: 1
    label: Loan Purpose
    access_field: loan_purpose
    prepopulate: true
criteria: ""
`,
		"questions/financing/amount.yaml": `id: Q301
name: Loan Amount
section: financing
ordinal: 2
level: PROPOSAL
instructions: How much are you looking to borrow?
type: number
flexibility: exact
can_combine_with:
  - Q300
form_fields:
  - order: 1
    label: Loan Amount
    access_field: loan_amount
    prepopulate: false
criteria: ""
`,
		"questions/financing/jumbo.yaml": `id: Q302
name: Jumbo Review
section: financing
ordinal: 3
level: PROPOSAL
instructions: A jumbo loan needs extra review. Ready to continue?
type: confirm
flexibility: conversational
form_fields:
  - order: 1
    label: Jumbo Acknowledged
    access_field: jumbo_acknowledged
    prepopulate: false
criteria: Loan Amount >= 766550
`,
	})
}
