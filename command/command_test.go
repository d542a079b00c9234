package command

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in    string
		kind  Kind
		value int
	}{
		{"join", Join, 0},
		{"JOIN", Join, 0},
		{"!join", Join, 0},
		{"  !Jugar  ", Join, 0},
		{"unirme", Join, 0},
		{"unirse", Join, 0},
		{"play", Join, 0},
		{"duel", StartDuel, 0},
		{"!DUELO", StartDuel, 0},
		{"bomba", StartElimination, 0},
		{"!bomb", StartElimination, 0},
		{"3", Number, 3},
		{"!3", Number, 3},
		{" 4821 ", Number, 4821},
		{"0", Number, 0},
		{"-5", Noise, 0},
		{"3.14", Noise, 0},
		{"", Noise, 0},
		{"!", Noise, 0},
		{"hello world", Noise, 0},
		{"join us", Noise, 0},
		{"1000000000000000000000", Noise, 0}, // overflows int
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Parse(tt.in)
			if got.Kind != tt.kind {
				t.Errorf("Parse(%q).Kind = %v, want %v", tt.in, got.Kind, tt.kind)
			}
			if got.Value != tt.value {
				t.Errorf("Parse(%q).Value = %d, want %d", tt.in, got.Value, tt.value)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{
		Join: "join", Number: "number", StartDuel: "start-duel",
		StartElimination: "start-elimination", Noise: "noise",
	} {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
