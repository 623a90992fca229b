// Package pdfform fills AcroForm text fields in a loaded PDF.
package pdfform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"slmassist/internal/logging"
	"slmassist/internal/router"
	"slmassist/internal/tools"
)

// formSpec mirrors the pdfcpu form-fill JSON layout.
type formSpec struct {
	Forms []formEntry `json:"forms"`
}

type formEntry struct {
	TextFields []textField `json:"textfield"`
}

type textField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Locked bool   `json:"locked"`
}

// FillTool returns a tool that writes field assignments into the form
// fields of a PDF. The filled copy is written next to the source with a
// _filled suffix; the original is never modified.
func FillTool() *tools.Tool {
	return &tools.Tool{
		Name:        "fill_pdf",
		Description: "Fill text form fields in a PDF document",
		Execute:     executeFill,
		Schema: tools.Schema{
			Required: []string{"path", "fields"},
			Properties: map[string]tools.Property{
				"path":   {Type: "string", Description: "Path of the PDF to fill"},
				"fields": {Type: "object", Description: "Field name to value assignments"},
			},
		},
	}
}

// Register adds the fill tool to a registry.
func Register(reg *tools.Registry) {
	reg.MustRegister(FillTool())
}

func executeFill(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("no PDF loaded")
	}

	fields, err := fieldMap(args["fields"])
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", router.ErrFillUsage
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("cannot read PDF: %w", err)
	}

	outPath := filledPath(path)
	specFile, err := writeFormSpec(fields)
	if err != nil {
		return "", err
	}
	defer os.Remove(specFile)

	logging.ToolsDebug("fill_pdf: in=%s out=%s fields=%d", path, outPath, len(fields))

	if err := api.FillFormFile(path, specFile, outPath, nil); err != nil {
		return "", fmt.Errorf("failed to fill form: %w", err)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	logging.Tools("filled %d field(s) in %s", len(fields), filepath.Base(path))
	return fmt.Sprintf("✅ Filled %s (%s) and saved to %s.",
		filepath.Base(path), strings.Join(names, ", "), outPath), nil
}

// fieldMap normalizes the fields argument, which arrives either as a
// map[string]string from the router or as generic JSON decoding output.
func fieldMap(raw any) (map[string]string, error) {
	switch v := raw.(type) {
	case map[string]string:
		return v, nil
	case map[string]any:
		out := make(map[string]string, len(v))
		for name, val := range v {
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("field %q: value must be a string", name)
			}
			out[name] = s
		}
		return out, nil
	case nil:
		return nil, router.ErrFillUsage
	default:
		return nil, fmt.Errorf("fields: unsupported type %T", raw)
	}
}

// filledPath derives the output path: report.pdf becomes report_filled.pdf.
func filledPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_filled" + ext
}

// writeFormSpec serializes assignments to a temporary pdfcpu form JSON file.
func writeFormSpec(fields map[string]string) (string, error) {
	entry := formEntry{}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry.TextFields = append(entry.TextFields, textField{Name: name, Value: fields[name]})
	}

	data, err := json.Marshal(formSpec{Forms: []formEntry{entry}})
	if err != nil {
		return "", fmt.Errorf("failed to encode form spec: %w", err)
	}

	f, err := os.CreateTemp("", "slm-form-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create form spec file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write form spec file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
