package prompt

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ContextLoader resolves the reference material forwarded with a
// hypothesis. The analysis core treats the returned text as opaque.
type ContextLoader interface {
	Load(hypothesis string) string
}

type fileLoader struct {
	reference string
}

// NewFileLoader reads the reference corpus once at startup. A missing or
// empty corpus is not an error, analysis simply runs without reference
// material.
func NewFileLoader(path string, logger *logrus.Logger) ContextLoader {
	if path == "" {
		return &fileLoader{}
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path from config
	if err != nil {
		logger.WithError(err).WithField("path", path).
			Warn("could not read reference corpus, continuing without it")
		return &fileLoader{}
	}
	return &fileLoader{reference: strings.TrimSpace(string(data))}
}

func (l *fileLoader) Load(hypothesis string) string {
	return l.reference
}

// Static wraps a fixed reference text, used by tests and embedded callers.
func Static(reference string) ContextLoader {
	return &fileLoader{reference: reference}
}
