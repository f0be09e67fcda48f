package app

// Operation tracks the CLI command run in one session. Commands that drive a
// presence session mark it journaled, which makes Close archive a snapshot of
// the journal.
type Operation struct {
	SessionID  string
	Command    string
	Parameters string
	Status     string // "success" or "error"
	journaled  bool
}

// NewOperation creates an operation that has not journaled anything.
func NewOperation(sessionID, command, parameters string) *Operation {
	return &Operation{
		SessionID:  sessionID,
		Command:    command,
		Parameters: parameters,
		Status:     "success",
	}
}

// MarkJournaled records that the session wrote to the journal.
func (op *Operation) MarkJournaled() {
	op.journaled = true
}

// Journaled reports whether the session wrote to the journal.
func (op *Operation) Journaled() bool {
	return op.journaled
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}
