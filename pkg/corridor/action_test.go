package corridor

import "testing"

func TestParseEnumsAreExact(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "move left", got: string(ParseMove("left")), want: "left"},
		{name: "move uppercase", got: string(ParseMove("LEFT")), want: "none"},
		{name: "move unknown", got: string(ParseMove("up")), want: "none"},
		{name: "lock unlock", got: string(ParseLock("unlock")), want: "unlock"},
		{name: "lock mixed case", got: string(ParseLock("Lock")), want: "none"},
		{name: "request accept", got: string(ParseRequest("accept")), want: "accept"},
		{name: "request empty", got: string(ParseRequest("")), want: "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestActionIsEmpty(t *testing.T) {
	if !NoAction().IsEmpty() {
		t.Fatal("NoAction should be empty")
	}
	if !(Action{Text: "   "}).IsEmpty() {
		t.Fatal("blank text action should be empty")
	}
	if (Action{Lock: LockLock}).IsEmpty() {
		t.Fatal("lock action should not be empty")
	}
}
