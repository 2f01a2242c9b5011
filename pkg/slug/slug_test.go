package slug

import "testing"

func TestMake(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Notes", "notes"},
		{"Hello, World!", "hello_world"},
		{"  Café   Crème ", "cafe_creme"},
		{"foo/bar:baz", "foo_bar_baz"},
		{"Already_snake_case", "already_snake_case"},
		{"!!!", Untitled},
		{"", Untitled},
		{"日本語", Untitled},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := Make(tt.title); got != tt.want {
				t.Errorf("Make(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestMakeTruncates(t *testing.T) {
	long := ""
	for range 30 {
		long += "word "
	}
	got := Make(long)
	if len(got) > MaxLength {
		t.Errorf("slug length %d exceeds %d", len(got), MaxLength)
	}
	if got[len(got)-1] == '_' {
		t.Errorf("slug should not end with a separator: %q", got)
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"my_meeting_notes", "My Meeting Notes"},
		{"release-plan", "Release Plan"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Title(tt.name); got != tt.want {
				t.Errorf("Title(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}
