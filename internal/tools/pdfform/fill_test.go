package pdfform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slmassist/internal/router"
)

func TestFillRequiresLoadedPDF(t *testing.T) {
	tool := FillTool()
	_, err := tool.Execute(context.Background(), map[string]any{
		"path":   "",
		"fields": map[string]string{"name": "Alice"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no PDF loaded")
}

func TestFillRequiresFields(t *testing.T) {
	tool := FillTool()
	_, err := tool.Execute(context.Background(), map[string]any{
		"path":   "doc.pdf",
		"fields": map[string]string{},
	})
	require.ErrorIs(t, err, router.ErrFillUsage)
}

func TestFillMissingFile(t *testing.T) {
	tool := FillTool()
	_, err := tool.Execute(context.Background(), map[string]any{
		"path":   "/nonexistent/doc.pdf",
		"fields": map[string]string{"name": "Alice"},
	})
	require.Error(t, err)
}

func TestFilledPath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"report.pdf", "report_filled.pdf"},
		{"/tmp/a/form.pdf", "/tmp/a/form_filled.pdf"},
		{"noext", "noext_filled"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, filledPath(c.in), "filledPath(%q)", c.in)
	}
}

func TestFieldMapConversions(t *testing.T) {
	got, err := fieldMap(map[string]any{"name": "Alice", "date": "2025-01-01"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Alice", "date": "2025-01-01"}, got)

	_, err = fieldMap(map[string]any{"n": 42})
	assert.Error(t, err, "non-string value must be rejected")

	_, err = fieldMap(nil)
	assert.ErrorIs(t, err, router.ErrFillUsage)
}
