package naming

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	TimeLayout     = "2006-01-02-15-04"
	ArchiveExt     = ".zip"
	DefaultPattern = "{gid}_{gn}"
	maxElementLen  = 255
	maxWindowsPath = 260
	noGroup        = "None"
)

var (
	ErrNameTooLong     = errors.New("file name too long")
	ErrInvalidTemplate = errors.New("invalid filename template")
)

var shanghai = time.FixedZone("UTC+8", 8*60*60)

type Field string

const (
	FieldTitle          Field = "gn"
	FieldTitleJpn       Field = "gj"
	FieldGID            Field = "gid"
	FieldPostUTC        Field = "post_utc_time"
	FieldPostShanghai   Field = "post_shanghai_time"
	FieldNow            Field = "now_time"
	FieldGroup          Field = "group"
	FieldGroupTranslate Field = "group_tra"
)

// Values holds everything a template can refer to.
type Values struct {
	Title           string
	TitleJpn        string
	GID             int64
	Posted          time.Time
	Now             time.Time
	Group           string
	GroupTranslated string
}

var producers = map[Field]func(v Values) string{
	FieldTitle: func(v Values) string { return v.Title },
	FieldTitleJpn: func(v Values) string {
		if v.TitleJpn == "" {
			return v.Title
		}
		return v.TitleJpn
	},
	FieldGID:          func(v Values) string { return strconv.FormatInt(v.GID, 10) },
	FieldPostUTC:      func(v Values) string { return v.Posted.UTC().Format(TimeLayout) },
	FieldPostShanghai: func(v Values) string { return v.Posted.In(shanghai).Format(TimeLayout) },
	FieldNow:          func(v Values) string { return v.Now.Local().Format(TimeLayout) },
	FieldGroup: func(v Values) string {
		if v.Group == "" {
			return noGroup
		}
		return v.Group
	},
	FieldGroupTranslate: func(v Values) string {
		switch {
		case v.GroupTranslated != "":
			return v.GroupTranslated
		case v.Group != "":
			return v.Group
		}
		return noGroup
	},
}

var sanitizer = strings.NewReplacer(
	":", "：",
	"?", "？",
	"!", "！",
	"<", "《",
	">", "》",
	"|", "_",
	"~", "～",
	"/", "_",
)

// Sanitize replaces characters that are unsafe in file names with full-width or safe equivalents.
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}

type segment struct {
	literal string
	field   Field
}

// Template is a parsed filename pattern. A literal "/" in the pattern starts a directory.
type Template struct {
	pattern  string
	segments []segment
}

func Parse(pattern string) (*Template, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidTemplate)
	}
	t := &Template{pattern: pattern}
	rest := pattern
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			t.segments = append(t.segments, segment{literal: rest})
			break
		}
		if open > 0 {
			t.segments = append(t.segments, segment{literal: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("%w: unclosed placeholder in %q", ErrInvalidTemplate, pattern)
		}
		name := Field(rest[open+1 : open+end])
		if _, ok := producers[name]; !ok {
			return nil, fmt.Errorf("%w: unknown placeholder {%s}", ErrInvalidTemplate, name)
		}
		t.segments = append(t.segments, segment{field: name})
		rest = rest[open+end+1:]
	}
	return t, nil
}

func (t *Template) String() string {
	return t.pattern
}

// Fields lists the placeholders used, in order of appearance.
func (t *Template) Fields() []Field {
	var fields []Field
	for _, s := range t.segments {
		if s.field != "" {
			fields = append(fields, s.field)
		}
	}
	return fields
}

// Uses reports whether the template refers to f.
func (t *Template) Uses(f Field) bool {
	for _, s := range t.segments {
		if s.field == f {
			return true
		}
	}
	return false
}

// Render returns the slash-separated relative archive path, including the extension.
func (t *Template) Render(v Values) (string, error) {
	var b strings.Builder
	for _, s := range t.segments {
		if s.field == "" {
			b.WriteString(s.literal)
			continue
		}
		b.WriteString(Sanitize(producers[s.field](v)))
	}
	rel := path.Clean("/" + b.String())[1:]
	if rel == "" {
		return "", fmt.Errorf("%w: pattern %q renders an empty name", ErrInvalidTemplate, t.pattern)
	}
	return rel + ArchiveExt, nil
}

// Path renders the archive path under dir and enforces platform name limits.
func (t *Template) Path(dir string, v Values) (string, error) {
	rel, err := t.Render(v)
	if err != nil {
		return "", err
	}
	full := filepath.Join(dir, filepath.FromSlash(rel))
	if err := checkLength(full, rel, runtime.GOOS == "windows"); err != nil {
		return "", err
	}
	return full, nil
}

func checkLength(full, rel string, windows bool) error {
	for _, elem := range strings.Split(rel, "/") {
		if len(elem) > maxElementLen {
			return fmt.Errorf("%w: %d bytes in %q", ErrNameTooLong, len(elem), elem)
		}
	}
	if windows && utf8.RuneCountInString(full) > maxWindowsPath {
		return fmt.Errorf("%w: path exceeds %d characters", ErrNameTooLong, maxWindowsPath)
	}
	return nil
}
