package interfaces

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	payment "ixora-billpay/internal/payment/domain"
)

// ErrReceiptUnavailable is returned for a payment that has not succeeded.
var ErrReceiptUnavailable = errors.New("payment: receipt unavailable")

type receiptLine struct {
	description string
	billNumber  string
	amount      float64
}

func receiptLines(rec payment.StatusRecord) []receiptLine {
	var lines []receiptLine
	if rec.Receipt != nil && len(rec.Receipt.Items) > 0 {
		for _, item := range rec.Receipt.Items {
			lines = append(lines, receiptLine{item.Description, item.BillNumber, item.Amount})
		}
		return lines
	}
	for _, bill := range rec.Bills {
		desc := bill.Description
		if desc == "" {
			desc = string(bill.Source)
		}
		lines = append(lines, receiptLine{desc, bill.BillNumber, bill.Amount})
	}
	return lines
}

func payerName(rec payment.StatusRecord) string {
	if rec.Receipt != nil {
		return rec.Receipt.PayerName
	}
	return ""
}

func paidAt(rec payment.StatusRecord) string {
	if rec.PaidAt.IsZero() {
		return "-"
	}
	return rec.PaidAt.Format(time.RFC3339)
}

// BuildReceiptPDF renders a one-page receipt for a successful payment.
func BuildReceiptPDF(rec payment.StatusRecord) ([]byte, error) {
	if rec.Status != payment.StatusSuccess {
		return nil, ErrReceiptUnavailable
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Payment Receipt")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Receipt No: %s", rec.ReceiptNumber))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Reference: %s", rec.Reference))
	pdf.Ln(5)
	if name := payerName(rec); name != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Payer: %s", name))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Paid At: %s", paidAt(rec)))
	pdf.Ln(5)
	if rec.Gateway != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Gateway: %s %s", rec.Gateway.Provider, rec.Gateway.TransactionID))
		pdf.Ln(5)
	}
	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Amount (RM): %.2f", rec.Amount))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(90, 6, "Description", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Bill No", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range receiptLines(rec) {
		pdf.CellFormat(90, 6, line.description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, line.billNumber, "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", line.amount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReceiptXLSX renders the receipt as a workbook with a summary and an
// items sheet.
func BuildReceiptXLSX(rec payment.StatusRecord) ([]byte, error) {
	if rec.Status != payment.StatusSuccess {
		return nil, ErrReceiptUnavailable
	}
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "receipt"
	itemsSheet := "items"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Payment Receipt")
	_ = f.SetCellValue(summarySheet, "A3", "Receipt No")
	_ = f.SetCellValue(summarySheet, "B3", rec.ReceiptNumber)
	_ = f.SetCellValue(summarySheet, "A4", "Reference")
	_ = f.SetCellValue(summarySheet, "B4", rec.Reference)
	_ = f.SetCellValue(summarySheet, "A5", "Payer")
	_ = f.SetCellValue(summarySheet, "B5", payerName(rec))
	_ = f.SetCellValue(summarySheet, "A6", "Paid At")
	_ = f.SetCellValue(summarySheet, "B6", paidAt(rec))
	_ = f.SetCellValue(summarySheet, "A7", "Amount (RM)")
	_ = f.SetCellValue(summarySheet, "B7", rec.Amount)
	if rec.Gateway != nil {
		_ = f.SetCellValue(summarySheet, "A8", "Order ID")
		_ = f.SetCellValue(summarySheet, "B8", rec.Gateway.OrderID)
		_ = f.SetCellValue(summarySheet, "A9", "Transaction ID")
		_ = f.SetCellValue(summarySheet, "B9", rec.Gateway.TransactionID)
	}

	_ = f.SetCellValue(itemsSheet, "A1", "Description")
	_ = f.SetCellValue(itemsSheet, "B1", "Bill No")
	_ = f.SetCellValue(itemsSheet, "C1", "Amount")
	for i, line := range receiptLines(rec) {
		row := i + 2
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), line.description)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), line.billNumber)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), line.amount)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
