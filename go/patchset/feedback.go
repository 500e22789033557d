package patchset

// Feedback is the validator's verdict. Its trailing rune is a stable
// contract that downstream stages branch on: '!' fatal, '?' soft
// warning, '.' success.
type Feedback string

// Severity returns the trailing rune of the feedback.
func (f Feedback) Severity() byte {
	if len(f) == 0 {
		return 0
	}
	return f[len(f)-1]
}

// Fatal reports a corrupt or rejected patchset.
func (f Feedback) Fatal() bool { return f.Severity() == '!' }

// Warning reports a patchset that applied with whitespace damage.
func (f Feedback) Warning() bool { return f.Severity() == '?' }

// Passed reports a cleanly applying patchset.
func (f Feedback) Passed() bool { return f.Severity() == '.' }
