// Package export renders a board snapshot as an xlsx workbook.
package export

import (
	"bytes"
	"time"

	"github.com/xuri/excelize/v2"

	"onboarding-board/board"
	"onboarding-board/domain"
)

const (
	FileName     = "onboarding-board.xlsx"
	TasksSheet   = "Tasks"
	SummarySheet = "Summary"
)

var columnTitles = map[domain.ColumnID]string{
	domain.ColumnTodo:       "To Do",
	domain.ColumnInProgress: "In Progress",
	domain.ColumnInReview:   "In Review",
	domain.ColumnDone:       "Done",
}

type field struct {
	header string
	width  float64
	value  func(domain.Task) any
}

var fields = []field{
	{"Task ID", 14, func(t domain.Task) any { return t.Key() }},
	{"Title", 32, func(t domain.Task) any { return t.TaskTitle }},
	{"Employee", 24, func(t domain.Task) any { return t.EmployeeName }},
	{"Employee ID", 14, func(t domain.Task) any { return t.EmployeeID }},
	{"Email", 28, func(t domain.Task) any { return t.EmployeeEmail }},
	{"Position", 20, func(t domain.Task) any { return t.EmployeePosition }},
	{"Department", 18, func(t domain.Task) any { return t.Department }},
	{"Application ID", 26, func(t domain.Task) any { return t.ApplicationID }},
	{"Status", 14, func(t domain.Task) any { return string(t.Status) }},
	{"Approval", 16, func(t domain.Task) any { return string(t.ApprovalType) }},
	{"Review Comments", 40, func(t domain.Task) any { return t.ReviewComments }},
	{"Priority", 10, func(t domain.Task) any { return t.Priority }},
	{"Deadline", 14, func(t domain.Task) any { return t.DeadLine }},
	{"Locked", 10, func(t domain.Task) any { return t.Locked() }},
}

// Board builds the workbook: a Tasks sheet with one row per task in column
// order and a Summary sheet with per-column counts.
func Board(snap board.Snapshot, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", TasksSheet); err != nil {
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DCE6F1"}},
	})
	if err != nil {
		return nil, err
	}

	headers := make([]any, 0, len(fields)+1)
	headers = append(headers, "Column")
	for _, fd := range fields {
		headers = append(headers, fd.header)
	}
	if err := writeRow(f, TasksSheet, 1, headers); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(TasksSheet, "A1", last, header); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(TasksSheet, "A", "A", 14); err != nil {
		return nil, err
	}
	for i, fd := range fields {
		col, _ := excelize.ColumnNumberToName(i + 2)
		if err := f.SetColWidth(TasksSheet, col, col, fd.width); err != nil {
			return nil, err
		}
	}

	row := 2
	for _, c := range domain.Columns {
		for _, t := range snap.Columns[c] {
			values := make([]any, 0, len(fields)+1)
			values = append(values, columnTitles[c])
			for _, fd := range fields {
				values = append(values, fd.value(t))
			}
			if err := writeRow(f, TasksSheet, row, values); err != nil {
				return nil, err
			}
			row++
		}
	}

	if err := writeSummary(f, snap, generatedAt, header); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if _, err := f.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, snap board.Snapshot, generatedAt time.Time, headerStyle int) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	if err := writeRow(f, SummarySheet, 1, []any{"Column", "Tasks"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", headerStyle); err != nil {
		return err
	}
	total := 0
	for i, c := range domain.Columns {
		n := len(snap.Columns[c])
		total += n
		if err := writeRow(f, SummarySheet, i+2, []any{columnTitles[c], n}); err != nil {
			return err
		}
	}
	next := len(domain.Columns) + 2
	if err := writeRow(f, SummarySheet, next, []any{"Total", total}); err != nil {
		return err
	}
	return writeRow(f, SummarySheet, next+1, []any{"Generated", generatedAt.UTC().Format(time.RFC3339)})
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
