package analytics

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-planner/internal/task"
)

const (
	summarySheet = "Summary"
	tasksSheet   = "Tasks"
)

var taskHeader = []any{"#", "Type", "Subject", "Title", "Due", "Status", "Attempts", "Best Score", "Priority"}

// WriteWorkbook writes an XLSX export of the report and tasks to w.
func WriteWorkbook(w io.Writer, report ProgressReport, tasks []task.Task, now time.Time) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("naming summary sheet: %w", err)
	}
	weekStart := ""
	if report.CurrentWeekStart != nil {
		weekStart = report.CurrentWeekStart.Format(time.DateOnly)
	}
	nextUnit := ""
	if report.Units.NextUnit != nil {
		nextUnit = *report.Units.NextUnit
	}
	summaryRows := [][]any{
		{"Learner", report.LearnerID},
		{"Week Start", weekStart},
		{"Generated", now.Format(time.RFC3339)},
		{},
		{"Total Tasks", report.Tasks.Total},
		{"Completed", report.Tasks.Completed},
		{"Pending", report.Tasks.Pending},
		{"Overdue", report.Tasks.Overdue},
		{"Completion Rate", report.Tasks.CompletionRate},
		{"Quizzes", report.Tasks.QuizCount},
		{"Tutorials", report.Tasks.TutorialCount},
		{},
		{"Chapters Completed", report.Units.Completed},
		{"Chapters Total", report.Units.Total},
		{"Chapter Progress", report.Units.Percentage},
		{"Next Chapter", nextUnit},
	}
	if err := writeRows(f, summarySheet, summaryRows); err != nil {
		return err
	}

	if _, err := f.NewSheet(tasksSheet); err != nil {
		return fmt.Errorf("creating tasks sheet: %w", err)
	}
	rows := make([][]any, 0, len(tasks)+1)
	rows = append(rows, taskHeader)
	for _, t := range tasks {
		best := ""
		if t.Attempts.BestScore != nil {
			best = fmt.Sprintf("%.2f", *t.Attempts.BestScore)
		}
		rows = append(rows, []any{
			t.TaskNumber,
			string(t.Type()),
			string(t.Subject),
			t.Title,
			t.DueDate.Format(time.RFC3339),
			string(t.Status(now)),
			t.Attempts.Attempts,
			best,
			Priority(t, now),
		})
	}
	if err := writeRows(f, tasksSheet, rows); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(taskHeader), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(tasksSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}
	if err := f.SetColWidth(tasksSheet, "D", "D", 40); err != nil {
		return fmt.Errorf("sizing title column: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
