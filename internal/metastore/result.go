package metastore

// Outcome is the result of one item in a batch operation.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ItemResult records what a batch operation did with one record.
type ItemResult struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind,omitempty"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
	Err     error   `json:"-"`
}

// Tally counts batch outcomes.
type Tally struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Add counts one outcome.
func (t *Tally) Add(o Outcome) {
	switch o {
	case OutcomeApplied:
		t.Succeeded++
	case OutcomeSkipped:
		t.Skipped++
	case OutcomeFailed:
		t.Failed++
	}
}

// TallyOf counts the outcomes in items.
func TallyOf(items []ItemResult) Tally {
	var t Tally
	for _, it := range items {
		t.Add(it.Outcome)
	}
	return t
}
