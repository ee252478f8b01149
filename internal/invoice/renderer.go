package invoice

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Fixed A4 layout. The table spans the printable width between 10mm margins.
const (
	pageLeft  = 10.0
	pageRight = 200.0

	colNum   = 10.0
	colItem  = 95.0
	colQty   = 15.0
	colPrice = 35.0
	colTotal = 35.0

	rowHeight    = 7.0
	maxItemChars = 35
)

// Render produces the invoice PDF for a resolved document. It is pure:
// the same document always yields byte-identical output, because both PDF
// metadata dates are pinned to the order's creation time rather than "now".
func Render(doc *Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(doc.Order.CreatedAt)
	pdf.SetModificationDate(doc.Order.CreatedAt)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	// Title block
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(190, 10, "TAX INVOICE", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(190, 5, doc.Store.Name, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(190, 5, doc.Store.Address, "", 1, "L", false, 0, "")
	pdf.CellFormat(190, 5, "Phone: "+doc.Store.Phone, "", 1, "L", false, 0, "")
	pdf.CellFormat(190, 5, "Email: "+doc.Store.Email, "", 1, "L", false, 0, "")
	pdf.CellFormat(190, 5, "GST: "+doc.GSTPercent.String()+"%", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	// Bill To block
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(190, 5, "Bill To", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(190, 5, doc.Customer.Name, "", 1, "L", false, 0, "")
	if doc.Customer.Email != "" {
		pdf.CellFormat(190, 5, doc.Customer.Email, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// Order metadata
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(95, 5, fmt.Sprintf("Order #%d", doc.Order.ID), "", 0, "L", false, 0, "")
	pdf.CellFormat(95, 5, "Date: "+doc.Order.CreatedAt.Format("02/01/2006"), "", 1, "R", false, 0, "")
	pdf.Ln(3)

	// Line item table
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(colNum, rowHeight, "#", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colItem, rowHeight, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colQty, rowHeight, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(colPrice, rowHeight, "Price", "B", 0, "R", false, 0, "")
	pdf.CellFormat(colTotal, rowHeight, "Total", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for i, line := range doc.Lines {
		pdf.CellFormat(colNum, rowHeight, fmt.Sprintf("%d", i+1), "", 0, "L", false, 0, "")
		pdf.CellFormat(colItem, rowHeight, truncate(line.Name, maxItemChars), "", 0, "L", false, 0, "")
		pdf.CellFormat(colQty, rowHeight, fmt.Sprintf("%d", line.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(colPrice, rowHeight, line.UnitPrice.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(colTotal, rowHeight, line.LineTotal.StringFixed(2), "", 1, "R", false, 0, "")
	}

	// Rule under the last row
	pdf.Line(pageLeft, pdf.GetY(), pageRight, pdf.GetY())
	pdf.Ln(2)

	// Totals block. Subtotal is the sum of captured line totals; Total is
	// the stored authoritative amount including shipping and GST, so the
	// two differ whenever shipping or tax is non-zero.
	totalsLabel := colNum + colItem + colQty + colPrice
	pdf.CellFormat(totalsLabel, rowHeight, "Subtotal", "", 0, "R", false, 0, "")
	pdf.CellFormat(colTotal, rowHeight, doc.LineSubtotal().StringFixed(2), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(totalsLabel, rowHeight, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(colTotal, rowHeight, doc.Order.TotalAmount.StringFixed(2), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice: %w", err)
	}

	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
