package app

import "testing"

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		command    string
		parameters string
	}{
		{name: "with parameters", command: "simulate", parameters: "roaming.xml"},
		{name: "empty parameters", command: "history", parameters: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("s-1", tt.command, tt.parameters)

			if op.SessionID != "s-1" {
				t.Errorf("SessionID = %q, want %q", op.SessionID, "s-1")
			}
			if op.Command != tt.command {
				t.Errorf("Command = %q, want %q", op.Command, tt.command)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Status != "success" {
				t.Errorf("Status = %q, want %q", op.Status, "success")
			}
			if op.Journaled() {
				t.Error("new operation is journaled")
			}
		})
	}
}

func TestOperation_MarkJournaledAndFail(t *testing.T) {
	op := NewOperation("s-1", "simulate", "")
	op.MarkJournaled()
	op.Fail()

	if !op.Journaled() {
		t.Error("Journaled() = false after MarkJournaled")
	}
	if op.Status != "error" {
		t.Errorf("Status = %q, want error", op.Status)
	}
}
