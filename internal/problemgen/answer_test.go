package problemgen

import "testing"

func TestCheckAnswer(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		answer    string
		want      bool
	}{
		{"exact", "12", "12", true},
		{"trimmed candidate", "  12\n", "12", true},
		{"trimmed answer", "x = 2", " x = 2 ", true},
		{"decimal form differs", "4.0", "4", false},
		{"spacing differs", "x=2", "x = 2", false},
		{"case differs", "X = 2", "x = 2", false},
		{"wrong", "13", "12", false},
		{"empty candidate", "", "12", false},
		{"both empty", "  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Question{Answer: tt.answer}
			if got := CheckAnswer(tt.candidate, q); got != tt.want {
				t.Errorf("CheckAnswer(%q, %q) = %v, want %v", tt.candidate, tt.answer, got, tt.want)
			}
		})
	}
}
