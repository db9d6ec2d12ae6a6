package logger

import (
	"io"
	"regexp"
)

// redactor scrubs credential-looking values before they reach any writer.
// The transport sends the session credential as a bearer token, so leaked
// headers are the main concern.
type redactor struct {
	patterns []*regexp.Regexp
}

func newRedactor() *redactor {
	return &redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`(?i)(token|secret|credential)["\s:=]+[a-zA-Z0-9._-]{8,}`),
		},
	}
}

func (r *redactor) redact(s string) string {
	out := s
	for _, pattern := range r.patterns {
		out = pattern.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}

func (r *redactor) wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *redactor
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.redact(string(p)))); err != nil {
		return 0, err
	}
	// Report the original length so zerolog never sees a short write.
	return len(p), nil
}
