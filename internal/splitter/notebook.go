package splitter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// notebookDoc is the subset of the Jupyter notebook format we consume.
// Cell sources may be a single string or a list of line strings.
type notebookDoc struct {
	Cells []notebookCell `json:"cells"`
}

type notebookCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
}

// ExtractNotebook concatenates the source text of code and markdown
// cells. Outputs and metadata are ignored.
func ExtractNotebook(content string) (string, error) {
	var doc notebookDoc
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return "", fmt.Errorf("%w: malformed notebook: %v", ErrDecode, err)
	}

	var cells []string
	for _, cell := range doc.Cells {
		if cell.CellType != "code" && cell.CellType != "markdown" {
			continue
		}
		source, err := cellSource(cell.Source)
		if err != nil {
			return "", err
		}
		cells = append(cells, source)
	}

	return strings.Join(cells, "\n"), nil
}

func cellSource(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, ""), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	return "", fmt.Errorf("%w: unexpected notebook cell source", ErrDecode)
}
