package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"onboarding-board/board"
	"onboarding-board/domain"
)

func TestBoardWritesTasksInColumnOrder(t *testing.T) {
	snap := board.Snapshot{Columns: map[domain.ColumnID][]domain.Task{
		domain.ColumnDone: {{TaskID: "t3", TaskTitle: "Badge", Status: domain.StatusComplete, ApprovalType: domain.ApprovalFinalRejected, ReviewComments: "Rejected: missing documents"}},
		domain.ColumnTodo: {{TaskID: "t1", TaskTitle: "Laptop", EmployeeName: "Sam", Status: domain.StatusTodo}},
	}}
	generated := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	data, err := Board(snap, generated)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(TasksSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Column" || rows[0][1] != "Task ID" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "To Do" || rows[1][1] != "t1" || rows[1][3] != "Sam" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][0] != "Done" || rows[2][1] != "t3" {
		t.Fatalf("unexpected second row %v", rows[2])
	}
	if got, _ := f.GetCellValue(TasksSheet, "K3"); got != "final_rejected" {
		t.Fatalf("expected approval in K3, got %q", got)
	}
	if got, _ := f.GetCellValue(TasksSheet, "L3"); got != "Rejected: missing documents" {
		t.Fatalf("expected comments in L3, got %q", got)
	}
	if got, _ := f.GetCellValue(TasksSheet, "O3"); got != "TRUE" {
		t.Fatalf("expected done task to be locked, got %q", got)
	}

	if got, _ := f.GetCellValue(SummarySheet, "B2"); got != "1" {
		t.Fatalf("expected 1 todo task, got %q", got)
	}
	if got, _ := f.GetCellValue(SummarySheet, "B6"); got != "2" {
		t.Fatalf("expected total of 2, got %q", got)
	}
	if got, _ := f.GetCellValue(SummarySheet, "B7"); got != "2024-05-01T09:00:00Z" {
		t.Fatalf("unexpected generated timestamp %q", got)
	}
}

func TestBoardEmptySnapshot(t *testing.T) {
	data, err := Board(board.Snapshot{}, time.Now())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(TasksSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected only the header row, got %d", len(rows))
	}
}
