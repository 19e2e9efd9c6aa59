package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/nurpe/agro-contracts/internal/model"
)

const fontName = "Helvetica"

type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: func() time.Time { return time.Now().UTC() }}
}

// Generate renders a printable copy of the contract for either party.
func (g *Generator) Generate(contract model.ContractView) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetCreationDate(g.now())
	pdf.SetTitle("Contract "+contract.ContractNumber, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(fontName, "B", 16)
	pdf.CellFormat(0, 10, "Agricultural Supply Contract", "", 1, "C", false, 0, "")

	pdf.SetFont(fontName, "", 11)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Contract No. %s", contract.ContractNumber)), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Status: %s", statusLabel(contract.Status))), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	addPartyBlock(pdf, tr, "Buyer", contract.BuyerUsername, contract.BuyerID.String())
	pdf.Ln(2)
	addPartyBlock(pdf, tr, "Farmer", contract.FarmerUsername, contract.FarmerID.String())
	pdf.Ln(4)

	pdf.SetFont(fontName, "B", 12)
	pdf.CellFormat(0, 8, "Subject", "", 1, "L", false, 0, "")

	headers := []string{"Crop", "Agreement date", "Delivery date", "Price"}
	colWidths := []float64{60, 40, 40, 40}
	drawTableRow(pdf, tr, headers, colWidths, true)
	drawTableRow(pdf, tr, []string{
		safeValue(contract.Crop),
		safeValue(contract.AgreementDate),
		safeValue(contract.DeliveryDate),
		formatAmount(contract.Price),
	}, colWidths, false)
	pdf.Ln(4)

	pdf.SetFont(fontName, "B", 12)
	pdf.CellFormat(0, 8, "Terms", "", 1, "L", false, 0, "")
	pdf.SetFont(fontName, "", 10)
	pdf.MultiCell(0, 5, tr(safeValue(contract.Terms)), "", "L", false)
	pdf.Ln(2)

	if contract.PaymentDeadline != nil && contract.Status == model.ContractStatusAwaitingPayment {
		pdf.SetTextColor(200, 0, 0)
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("Payment due by %s.", formatDate(*contract.PaymentDeadline))), "", "L", false)
		pdf.SetTextColor(0, 0, 0)
	}
	if contract.PaymentID != nil {
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("Payment reference: %s", *contract.PaymentID)), "", 1, "L", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont(fontName, "B", 12)
	pdf.CellFormat(0, 8, "Signatures", "", 1, "L", false, 0, "")

	signatureBlock(pdf, tr, "Buyer", contract.BuyerSignature)
	farmerSignature := ""
	if contract.FarmerSignature != nil {
		farmerSignature = *contract.FarmerSignature
	}
	signatureBlock(pdf, tr, "Farmer", farmerSignature)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addPartyBlock(pdf *gofpdf.Fpdf, tr func(string) string, title, username, id string) {
	pdf.SetFont(fontName, "B", 11)
	pdf.CellFormat(0, 6, title, "", 1, "L", false, 0, "")
	pdf.SetFont(fontName, "", 10)
	pdf.MultiCell(0, 5, tr(fmt.Sprintf("Username: %s", safeValue(username))), "", "L", false)
	pdf.MultiCell(0, 5, tr(fmt.Sprintf("ID: %s", id)), "", "L", false)
}

func drawTableRow(pdf *gofpdf.Fpdf, tr func(string) string, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 10)
	for i, col := range cols {
		align := "L"
		if i == len(cols)-1 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, tr(col), "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

func signatureBlock(pdf *gofpdf.Fpdf, tr func(string) string, label, signature string) {
	pdf.SetFont(fontName, "", 11)
	if strings.TrimSpace(signature) == "" {
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s: ______________________ (not signed)", label)), "", 1, "L", false, 0, "")
		return
	}
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s: %s", label, signature)), "", 1, "L", false, 0, "")
}

func statusLabel(status model.ContractStatus) string {
	switch status {
	case model.ContractStatusPendingFarmer:
		return "awaiting farmer signature"
	case model.ContractStatusAwaitingPayment:
		return "awaiting payment"
	case model.ContractStatusCompleted:
		return "completed"
	case model.ContractStatusDissolved:
		return "dissolved"
	case model.ContractStatusDismissed:
		return "dismissed"
	default:
		return string(status)
	}
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatAmount(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("02.01.2006")
}
