package utils

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"rankitpro/models"
)

var reportColumns = []string{
	"request_id", "customer_name", "customer_email", "customer_phone", "technician_id", "status",
	"initial_sent_at", "first_follow_up_sent_at", "second_follow_up_sent_at", "final_follow_up_sent_at",
	"link_clicked_at", "review_submitted_at", "review_rating", "unsubscribed_at", "failed_attempts", "created_at",
}

// BuildDripReport writes a company's drips to an xlsx workbook with a
// "Drips" sheet and a "Summary" sheet
func BuildDripReport(drips []models.ReviewDrip) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Drips"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	for i, col := range reportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, col)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(reportColumns), 1)
		f.SetCellStyle(sheet, "A1", last, headerStyle)
	}
	f.SetColWidth(sheet, "A", "P", 20)

	completedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C6EFCE"}, Pattern: 1},
	})
	unsubscribedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9D9D9"}, Pattern: 1},
	})

	counts := map[string]int{}
	clicked, reviewed := 0, 0
	for i, d := range drips {
		row := i + 2
		values := []interface{}{
			d.ReviewRequestID, d.CustomerName, d.CustomerEmail, d.CustomerPhone, d.TechnicianID, d.Status,
			timeCell(d.InitialRequestSentAt), timeCell(d.FirstFollowUpSentAt),
			timeCell(d.SecondFollowUpSentAt), timeCell(d.FinalFollowUpSentAt),
			timeCell(d.LinkClickedAt), timeCell(d.ReviewSubmittedAt), d.ReviewRating,
			timeCell(d.UnsubscribedAt), d.FailedAttempts, d.CreatedAt.Format(time.RFC3339),
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			f.SetCellValue(sheet, cell, v)
		}

		statusCell, _ := excelize.CoordinatesToCellName(6, row)
		switch d.Status {
		case models.DripStatusCompleted:
			f.SetCellStyle(sheet, statusCell, statusCell, completedStyle)
		case models.DripStatusUnsubscribed:
			f.SetCellStyle(sheet, statusCell, statusCell, unsubscribedStyle)
		}

		counts[d.Status]++
		if d.LinkClicked {
			clicked++
		}
		if d.ReviewSubmitted {
			reviewed++
		}
	}

	const summary = "Summary"
	if _, err := f.NewSheet(summary); err != nil {
		return nil, fmt.Errorf("failed to add summary sheet: %w", err)
	}
	rows := [][]interface{}{
		{"metric", "value"},
		{"total", len(drips)},
		{models.DripStatusPending, counts[models.DripStatusPending]},
		{models.DripStatusInProgress, counts[models.DripStatusInProgress]},
		{models.DripStatusCompleted, counts[models.DripStatusCompleted]},
		{models.DripStatusUnsubscribed, counts[models.DripStatusUnsubscribed]},
		{"link_clicked", clicked},
		{"review_submitted", reviewed},
	}
	for i, r := range rows {
		f.SetCellValue(summary, fmt.Sprintf("A%d", i+1), r[0])
		f.SetCellValue(summary, fmt.Sprintf("B%d", i+1), r[1])
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
