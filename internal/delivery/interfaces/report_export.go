package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	delivery "warehouse-sentinel/internal/delivery/domain"
)

// BuildDeliveryReportPDF renders a delivery report covering one window.
func BuildDeliveryReportPDF(stats delivery.Stats, failures []delivery.DayFailures, entries []delivery.Entry, from, to time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Notification Delivery Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Window: %s - %s", from.Format("2006-01-02"), to.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Sends: %d", stats.Total))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Delivered: %d", stats.Delivered))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Sent (pending confirmation): %d", stats.Sent))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Failed: %d", stats.Failed))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Undelivered: %d", stats.Undelivered))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Success Rate: %.1f%%", stats.SuccessRate*100))
	pdf.Ln(8)

	if len(failures) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(60, 6, "Day", "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 6, "Failures", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, day := range failures {
			pdf.CellFormat(60, 6, day.Day, "1", 0, "C", false, 0, "")
			pdf.CellFormat(60, 6, fmt.Sprintf("%d", day.Count), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Channel", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "Destination", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Created", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, entry := range entries {
		pdf.CellFormat(30, 6, entry.Channel, "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 6, entry.Destination, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, entry.Status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, entry.CreatedAt.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDeliveryReportXLSX renders the same report as a workbook.
func BuildDeliveryReportXLSX(stats delivery.Stats, failures []delivery.DayFailures, entries []delivery.Entry, from, to time.Time) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	entriesSheet := "entries"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(entriesSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Notification Delivery Report")
	_ = f.SetCellValue(summarySheet, "A3", "From")
	_ = f.SetCellValue(summarySheet, "B3", from.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A4", "To")
	_ = f.SetCellValue(summarySheet, "B4", to.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A5", "Total Sends")
	_ = f.SetCellValue(summarySheet, "B5", stats.Total)
	_ = f.SetCellValue(summarySheet, "A6", "Delivered")
	_ = f.SetCellValue(summarySheet, "B6", stats.Delivered)
	_ = f.SetCellValue(summarySheet, "A7", "Sent")
	_ = f.SetCellValue(summarySheet, "B7", stats.Sent)
	_ = f.SetCellValue(summarySheet, "A8", "Failed")
	_ = f.SetCellValue(summarySheet, "B8", stats.Failed)
	_ = f.SetCellValue(summarySheet, "A9", "Undelivered")
	_ = f.SetCellValue(summarySheet, "B9", stats.Undelivered)
	_ = f.SetCellValue(summarySheet, "A10", "Success Rate")
	_ = f.SetCellValue(summarySheet, "B10", stats.SuccessRate)

	_ = f.SetCellValue(summarySheet, "D1", "Day")
	_ = f.SetCellValue(summarySheet, "E1", "Failures")
	for i, day := range failures {
		row := i + 2
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", row), day.Day)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("E%d", row), day.Count)
	}

	_ = f.SetCellValue(entriesSheet, "A1", "Alert")
	_ = f.SetCellValue(entriesSheet, "B1", "Channel")
	_ = f.SetCellValue(entriesSheet, "C1", "Destination")
	_ = f.SetCellValue(entriesSheet, "D1", "Status")
	_ = f.SetCellValue(entriesSheet, "E1", "Error")
	_ = f.SetCellValue(entriesSheet, "F1", "Created")
	for i, entry := range entries {
		row := i + 2
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("A%d", row), entry.AlertID)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("B%d", row), entry.Channel)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("C%d", row), entry.Destination)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("D%d", row), entry.Status)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("E%d", row), entry.ErrorMessage)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("F%d", row), entry.CreatedAt.Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
