package documents

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"brickkit/internal/catalog"
)

// FileName is the booklet written into the instructions directory.
const FileName = "instructions.html"

// Input carries the artifacts of a successful render.
type Input struct {
	Model           catalog.Candidate
	InstructionsDir string
	StepPaths       []string
	BOMPath         string
}

// Renderer produces an instruction document and returns its path.
type Renderer interface {
	Render(ctx context.Context, in Input) (string, error)
}

//go:embed booklet.html.tmpl
var bookletTemplate string

var booklet = template.Must(template.New("booklet").Parse(bookletTemplate))

// HTMLBooklet renders a self-contained HTML page next to the step images.
type HTMLBooklet struct{}

// Part is one bill-of-materials row.
type Part struct {
	Name     string
	Color    string
	Number   string
	Quantity string
}

type bookletData struct {
	Title    string
	ID       string
	Category string
	Year     string
	Steps    []bookletStep
	Parts    []Part
}

type bookletStep struct {
	Number int
	Image  string
}

// Render writes instructions.html and returns its path.
func (HTMLBooklet) Render(ctx context.Context, in Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if in.InstructionsDir == "" {
		return "", errors.New("instructions directory required")
	}
	if len(in.StepPaths) == 0 {
		return "", errors.New("no step images to assemble")
	}

	data := bookletData{
		Title:    strings.TrimSpace(in.Model.DisplayName),
		ID:       in.Model.ID,
		Category: in.Model.Category,
	}
	if data.Title == "" {
		data.Title = "Building instructions"
	}
	if in.Model.ReleaseYear != nil {
		data.Year = strconv.Itoa(*in.Model.ReleaseYear)
	}
	for i, path := range in.StepPaths {
		rel, err := filepath.Rel(in.InstructionsDir, path)
		if err != nil {
			rel = path
		}
		data.Steps = append(data.Steps, bookletStep{Number: i + 1, Image: filepath.ToSlash(rel)})
	}
	if in.BOMPath != "" {
		parts, err := ReadBOM(in.BOMPath)
		if err != nil {
			return "", fmt.Errorf("read bill of materials: %w", err)
		}
		data.Parts = parts
	}

	var buf bytes.Buffer
	if err := booklet.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render booklet: %w", err)
	}
	path := filepath.Join(in.InstructionsDir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write booklet: %w", err)
	}
	return path, nil
}

// ReadBOM parses a LeoCAD CSV parts export. The header row decides which
// columns hold the part name, color, number and quantity; unknown layouts
// fall back to column order.
func ReadBOM(path string) ([]Part, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cols := columnIndex(header)

	var parts []Part
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		part := Part{
			Name:     field(record, cols["name"]),
			Color:    field(record, cols["color"]),
			Number:   field(record, cols["number"]),
			Quantity: field(record, cols["quantity"]),
		}
		if part.Name == "" && part.Number == "" {
			continue
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func columnIndex(header []string) map[string]int {
	cols := map[string]int{"name": 0, "color": 1, "quantity": 2, "number": 3}
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case strings.Contains(name, "desc") || name == "part name" || name == "name":
			cols["name"] = i
		case strings.Contains(name, "color") || strings.Contains(name, "colour"):
			cols["color"] = i
		case strings.Contains(name, "count") || strings.Contains(name, "qty") || strings.Contains(name, "quantity"):
			cols["quantity"] = i
		case strings.Contains(name, "part") || strings.Contains(name, "id") || strings.Contains(name, "number"):
			cols["number"] = i
		}
	}
	return cols
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
