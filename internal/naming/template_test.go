package naming

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleValues() Values {
	return Values{
		Title:    "[Circle (Artist)] Title: Part 1?",
		TitleJpn: "",
		GID:      3329861,
		Posted:   time.Date(2024, 3, 1, 20, 30, 0, 0, time.UTC),
		Now:      time.Date(2025, 1, 2, 3, 4, 0, 0, time.Local),
		Group:    "circle",
	}
}

func TestParse(t *testing.T) {
	tmpl, err := Parse("{group}/{gid}_{gj}")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := tmpl.Fields()
	want := []Field{FieldGroup, FieldGID, FieldTitleJpn}
	if len(got) != len(want) {
		t.Fatalf("Fields = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("field %d = %s, want %s", i, got[i], want[i])
		}
	}
	if !tmpl.Uses(FieldGroup) || tmpl.Uses(FieldGroupTranslate) {
		t.Errorf("Uses reported wrong fields")
	}

	for _, bad := range []string{"", "  ", "{gid", "{title}", "{gid}_{unknown}"} {
		if _, err := Parse(bad); !errors.Is(err, ErrInvalidTemplate) {
			t.Errorf("Parse(%q) err = %v, want ErrInvalidTemplate", bad, err)
		}
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"{gid}_{gn}", "3329861_[Circle (Artist)] Title： Part 1？.zip"},
		{"{gj}", "[Circle (Artist)] Title： Part 1？.zip"},
		{"{group}/{gid}", "circle/3329861.zip"},
		{"{group_tra}-{gid}", "circle-3329861.zip"},
		{"{post_utc_time}", "2024-03-01-20-30.zip"},
		{"{post_shanghai_time}", "2024-03-02-04-30.zip"},
		{"{now_time}", "2025-01-02-03-04.zip"},
		{"/../{gid}", "3329861.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			tmpl, err := Parse(tt.pattern)
			if err != nil {
				t.Fatal(err)
			}
			got, err := tmpl.Render(sampleValues())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Render = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderDefaults(t *testing.T) {
	v := Values{Title: "a/b|c~d<e>f!", GID: 1}
	tmpl, _ := Parse("{group}_{group_tra}_{gn}")
	got, err := tmpl.Render(v)
	if err != nil {
		t.Fatal(err)
	}
	if got != "None_None_a_b_c～d《e》f！.zip" {
		t.Errorf("Render = %q", got)
	}

	v.Group, v.GroupTranslated = "raw", "Translated"
	got, _ = tmpl.Render(v)
	if !strings.HasPrefix(got, "raw_Translated_") {
		t.Errorf("Render = %q", got)
	}
}

func TestSanitizeLeavesNoUnsafeCharacters(t *testing.T) {
	out := Sanitize(`a:b?c!d<e>f|g~h/i`)
	if strings.ContainsAny(out, `:?!<>|~/`) {
		t.Errorf("Sanitize left unsafe characters: %q", out)
	}
}

func TestPathLengthLimits(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("x", 260)
	tmpl, _ := Parse("{gn}")
	if _, err := tmpl.Path(dir, Values{Title: long}); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("expected ErrNameTooLong, got %v", err)
	}

	full, err := tmpl.Path(dir, Values{Title: "short"})
	if err != nil {
		t.Fatal(err)
	}
	if full != filepath.Join(dir, "short.zip") {
		t.Errorf("Path = %q", full)
	}

	if err := checkLength("C:/"+strings.Repeat("d", 250)+"/name.zip", "name.zip", true); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("windows full path limit not enforced: %v", err)
	}
	if err := checkLength("/"+strings.Repeat("d", 250)+"/name.zip", "name.zip", false); err != nil {
		t.Errorf("unexpected error off windows: %v", err)
	}
}
