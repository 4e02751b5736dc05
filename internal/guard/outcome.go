package guard

// Outcome is the result of one validator or rewriter pass. Violations decide
// acceptance; Notes are observability only and never affect control flow.
type Outcome struct {
	Violations []string
	Notes      []string
}

// OK reports acceptance: no violations.
func (o *Outcome) OK() bool { return len(o.Violations) == 0 }

func (o *Outcome) violate(code string) {
	for _, v := range o.Violations {
		if v == code {
			return
		}
	}
	o.Violations = append(o.Violations, code)
}

func (o *Outcome) note(n string) {
	o.Notes = append(o.Notes, n)
}
