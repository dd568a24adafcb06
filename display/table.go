package display

import (
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/teranos/texcomp/suggest"
)

// SuggestionRows converts items into table rows with a header
func SuggestionRows(items []suggest.Item) pterm.TableData {
	rows := pterm.TableData{{"#", "Label", "Category", "Detail"}}
	for _, it := range items {
		rows = append(rows, []string{strconv.Itoa(it.Rank), it.Label, it.Category.String(), it.Detail})
	}
	return rows
}

// RenderSuggestions writes items as a table
func RenderSuggestions(w io.Writer, items []suggest.Item) error {
	if len(items) == 0 {
		pterm.Info.WithWriter(w).Println("No candidates")
		return nil
	}
	return pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithWriter(w).
		WithData(SuggestionRows(items)).
		Render()
}
