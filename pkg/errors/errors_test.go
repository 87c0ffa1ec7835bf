package errors

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	_, statErr := os.Stat("/definitely/not/here")
	cases := map[string]error{
		"ok":                  nil,
		"document_build":      fmt.Errorf("building: %w", New(ErrDocumentBuild, "2 problems")),
		"source_unavailable":  Newf(ErrSourceUnavailable, "source %s", "https://repo.example.com/"),
		"timeout":             fmt.Errorf("q: %w", context.DeadlineExceeded),
		"canceled":            context.Canceled,
		"malformed_candidate": New(ErrMalformedCandidate, "no artifactId"),
		"lookup":              New(ErrLookup, "no local repository"),
		"not_open":            ErrDocumentNotOpen,
		"invalid_input":       ErrInvalidInput,
		"io":                  statErr,
		"internal":            fmt.Errorf("other"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Kind(err), "%v", err)
	}
}

func TestAppErrorMessage(t *testing.T) {
	err := Newf(ErrLookup, "component %q", "remote")
	assert.Equal(t, `component lookup failed: component "remote"`, err.Error())
	assert.ErrorIs(t, err, ErrLookup)
}
