/*
Package export renders settlement value objects as downloadable documents.

PURPOSE:
  PDF and XLSX rendering of invoices and cashback reports. Export consumes
  Invoice / AgentCashbackStatus values read-only; it never touches the
  engine's ledgers, so rendering can never change what is owed.

FORMATS:
  - Invoice PDF: one-page document with the revenue split and a line item
    per inspection.
  - Invoice XLSX: summary sheet plus a line-item sheet.
  - Cashback report XLSX: one row per (agent, period) of unprocessed
    cashback, for the bookkeeping team.
*/
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/propora/settlement-engine/settlement"
)

const dateFormat = "2006-01-02"

// BuildInvoicePDF renders an invoice with its line items. The inspections
// slice should contain the records referenced by the invoice; missing ones
// are rendered as bare ids so an export can never fail on a stale snapshot.
func BuildInvoicePDF(inv settlement.Invoice, inspections []settlement.Inspection, now time.Time) ([]byte, error) {
	byID := make(map[settlement.InspectionID]settlement.Inspection, len(inspections))
	for _, insp := range inspections {
		byID[insp.ID] = insp
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	scope := "All agents (combined)"
	if inv.AgentID != settlement.CombinedScope {
		scope = fmt.Sprintf("Agent %s", inv.AgentID)
	}

	pdf.Cell(0, 8, "Inspection Settlement Invoice")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice: %s", inv.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Scope: %s", scope))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Billing period %d: %s to %s",
		inv.PeriodNumber,
		inv.BillingPeriodStart.Format(dateFormat),
		inv.BillingPeriodEnd.Format(dateFormat)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", settlement.EffectiveStatus(inv, now)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", inv.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Due: %s", inv.DueDate.Format(dateFormat)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Total: %s", inv.TotalAmount.StringFixed(2)))
	pdf.Ln(5)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Agent cashback (15%%): %s", inv.AgentCashback.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Clerk commission (30%%): %s", inv.ClerkCommission.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Net: %s", inv.NetAmount.StringFixed(2)))
	pdf.Ln(8)

	// Line items
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Inspection", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Agent", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Price", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, id := range inv.InspectionIDs {
		insp, ok := byID[id]
		if !ok {
			pdf.CellFormat(60, 6, string(id), "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 6, "-", "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, "-", "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, "-", "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
			continue
		}
		pdf.CellFormat(60, 6, string(insp.ID), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, string(insp.AgentID), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, insp.SettlementDate().Format(dateFormat), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, insp.Price.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildInvoiceXLSX renders an invoice as a workbook with summary and items sheets.
func BuildInvoiceXLSX(inv settlement.Invoice, inspections []settlement.Inspection, now time.Time) ([]byte, error) {
	byID := make(map[settlement.InspectionID]settlement.Inspection, len(inspections))
	for _, insp := range inspections {
		byID[insp.ID] = insp
	}

	f := excelize.NewFile()
	summarySheet := "summary"
	itemsSheet := "items"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(itemsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Inspection Settlement Invoice")
	_ = f.SetCellValue(summarySheet, "A3", "Invoice")
	_ = f.SetCellValue(summarySheet, "B3", string(inv.ID))
	_ = f.SetCellValue(summarySheet, "A4", "Scope")
	_ = f.SetCellValue(summarySheet, "B4", string(inv.AgentID))
	_ = f.SetCellValue(summarySheet, "A5", "Period")
	_ = f.SetCellValue(summarySheet, "B5", inv.PeriodNumber)
	_ = f.SetCellValue(summarySheet, "A6", "Period start")
	_ = f.SetCellValue(summarySheet, "B6", inv.BillingPeriodStart.Format(dateFormat))
	_ = f.SetCellValue(summarySheet, "A7", "Period end")
	_ = f.SetCellValue(summarySheet, "B7", inv.BillingPeriodEnd.Format(dateFormat))
	_ = f.SetCellValue(summarySheet, "A8", "Status")
	_ = f.SetCellValue(summarySheet, "B8", string(settlement.EffectiveStatus(inv, now)))
	_ = f.SetCellValue(summarySheet, "A9", "Total")
	_ = f.SetCellValue(summarySheet, "B9", inv.TotalAmount.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A10", "Agent cashback")
	_ = f.SetCellValue(summarySheet, "B10", inv.AgentCashback.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A11", "Clerk commission")
	_ = f.SetCellValue(summarySheet, "B11", inv.ClerkCommission.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A12", "Net")
	_ = f.SetCellValue(summarySheet, "B12", inv.NetAmount.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A13", "Due")
	_ = f.SetCellValue(summarySheet, "B13", inv.DueDate.Format(dateFormat))

	_ = f.SetCellValue(itemsSheet, "A1", "Inspection")
	_ = f.SetCellValue(itemsSheet, "B1", "Agent")
	_ = f.SetCellValue(itemsSheet, "C1", "Date")
	_ = f.SetCellValue(itemsSheet, "D1", "Price")
	for i, id := range inv.InspectionIDs {
		row := i + 2
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), string(id))
		if insp, ok := byID[id]; ok {
			_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), string(insp.AgentID))
			_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), insp.SettlementDate().Format(dateFormat))
			_ = f.SetCellValue(itemsSheet, fmt.Sprintf("D%d", row), insp.Price.StringFixed(2))
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render invoice xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildCashbackReportXLSX renders the unprocessed-cashback aggregation as a
// workbook with one row per (agent, period) plus per-agent totals.
func BuildCashbackReportXLSX(statuses []settlement.AgentCashbackStatus) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "unprocessed cashback"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Agent")
	_ = f.SetCellValue(sheet, "B1", "Period")
	_ = f.SetCellValue(sheet, "C1", "Period start")
	_ = f.SetCellValue(sheet, "D1", "Period end")
	_ = f.SetCellValue(sheet, "E1", "Inspections")
	_ = f.SetCellValue(sheet, "F1", "Revenue")
	_ = f.SetCellValue(sheet, "G1", "Cashback")

	row := 2
	for _, status := range statuses {
		for _, pc := range status.PeriodsWithCashback {
			_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), string(status.AgentID))
			_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), pc.Period.Number)
			_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), pc.Period.Start.Format(dateFormat))
			_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), pc.Period.End.Format(dateFormat))
			_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), len(pc.Inspections))
			_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), pc.Revenue.StringFixed(2))
			_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), pc.Cashback.StringFixed(2))
			row++
		}
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), string(status.AgentID))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), "total")
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), status.TotalRevenue.StringFixed(2))
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), status.TotalCashback.StringFixed(2))
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render cashback report: %w", err)
	}
	return buf.Bytes(), nil
}
