package domain

import "testing"

func TestRenderMessage(t *testing.T) {
	alice := Recipient{
		FirstName: "Alice",
		LastName:  "Chen",
		Company:   "Acme",
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "first name",
			template: "Hi {{firstName}}, great to connect!",
			want:     "Hi Alice, great to connect!",
		},
		{
			name:     "all placeholders",
			template: "{{firstName}} {{lastName}} at {{company}}",
			want:     "Alice Chen at Acme",
		},
		{
			name:     "repeated placeholder",
			template: "{{firstName}}, {{firstName}}!",
			want:     "Alice, Alice!",
		},
		{
			name:     "unknown placeholder left intact",
			template: "Hi {{firstname}}",
			want:     "Hi {{firstname}}",
		},
		{
			name:     "no placeholders",
			template: "Just following up.",
			want:     "Just following up.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderMessage(tt.template, alice); got != tt.want {
				t.Errorf("RenderMessage(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestRenderMessage_EmptyFields(t *testing.T) {
	r := Recipient{FirstName: "Bob"}

	got := RenderMessage("{{firstName}} from {{company}}", r)
	if got != "Bob from " {
		t.Errorf("expected empty company to render as empty string, got %q", got)
	}
}
