package service

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownTemplateKey is returned by renderTemplate when tmpl references a
// key no builder supplies, mirroring _TemplateFilenameFormatter's KeyError.
var ErrUnknownTemplateKey = errors.New("service: template references unsupported key")

var templateKeyPattern = regexp.MustCompile(`\{(\w+)\}`)

// renderTemplate expands a "{key}" filename template, matching
// _util.py's _TemplateFilenameFormatter: "uuid4", "now", and "utcnow" are
// always available, extra supplies per-call additions (e.g. "md5" for
// utterance filenames). Unlike the Python original, a trailing ":spec"
// format verb isn't supported — no template in this codebase's defaults
// uses one, and Go's time formatting verbs don't map onto Python's.
func renderTemplate(now func() time.Time, tmpl string, extra map[string]func() string) (string, error) {
	if now == nil {
		now = time.Now
	}
	builders := map[string]func() string{
		"uuid4":  func() string { return uuid.NewString() },
		"now":    func() string { return now().Format(time.RFC3339) },
		"utcnow": func() string { return now().UTC().Format(time.RFC3339) },
	}
	for k, fn := range extra {
		builders[k] = fn
	}

	var missing []string
	values := map[string]string{}
	for _, m := range templateKeyPattern.FindAllStringSubmatch(tmpl, -1) {
		key := m[1]
		if _, done := values[key]; done {
			continue
		}
		fn, ok := builders[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		values[key] = fn()
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %v", ErrUnknownTemplateKey, missing)
	}

	return templateKeyPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := templateKeyPattern.FindStringSubmatch(m)[1]
		return values[key]
	}), nil
}
