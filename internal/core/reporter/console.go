package reporter

import (
	"fmt"

	"github.com/pterm/pterm"
)

// ConsoleReporter 控制台表格输出
type ConsoleReporter struct {
	Title string
}

func NewConsoleReporter(title string) *ConsoleReporter {
	return &ConsoleReporter{Title: title}
}

func (r *ConsoleReporter) Report(data TabularData) error {
	if data == nil {
		return nil
	}
	rows := data.Rows()
	if len(rows) == 0 {
		pterm.Warning.Println("No results found.")
		return nil
	}

	if r.Title != "" {
		pterm.DefaultSection.Println(r.Title)
	}

	tableData := pterm.TableData{data.Headers()}
	tableData = append(tableData, rows...)

	err := pterm.DefaultTable.
		WithHasHeader(true).
		WithBoxed(false).
		WithData(tableData).
		Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
