package excel

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nurpe/agro-contracts/internal/model"
)

// Register is the set of contracts exported for one user.
type Register struct {
	Owner       string
	GeneratedAt time.Time
	Contracts   []model.ContractView
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

var statusOrder = []model.ContractStatus{
	model.ContractStatusPendingFarmer,
	model.ContractStatusAwaitingPayment,
	model.ContractStatusCompleted,
	model.ContractStatusDissolved,
	model.ContractStatusDismissed,
}

func (g *Generator) Generate(register Register) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	summarySheet := "Summary"
	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	groups := groupByStatus(register.Contracts)
	if err := g.writeSummary(file, summarySheet, register, groups); err != nil {
		return nil, err
	}

	usedNames := map[string]struct{}{summarySheet: {}}
	for _, status := range statusOrder {
		contracts := groups[status]
		if len(contracts) == 0 {
			continue
		}
		sheetName := buildSheetName(string(status), usedNames)
		usedNames[sheetName] = struct{}{}

		if _, err := file.NewSheet(sheetName); err != nil {
			return nil, err
		}
		if err := g.writeDetail(file, sheetName, contracts); err != nil {
			return nil, err
		}
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, sheet string, register Register, groups map[model.ContractStatus][]model.ContractView) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Owner")
	set("B1", register.Owner)
	set("A2", "Generated at")
	set("B2", formatDateTime(register.GeneratedAt))
	set("A3", "Contracts")
	set("B3", len(register.Contracts))
	set("A4", "Total value")
	set("B4", formatAmount(sumPrice(register.Contracts)))

	tableRow := 6
	set(fmt.Sprintf("A%d", tableRow), "Status")
	set(fmt.Sprintf("B%d", tableRow), "Contracts")
	set(fmt.Sprintf("C%d", tableRow), "Total value")

	for i, status := range statusOrder {
		row := tableRow + 1 + i
		set(fmt.Sprintf("A%d", row), string(status))
		set(fmt.Sprintf("B%d", row), len(groups[status]))
		set(fmt.Sprintf("C%d", row), formatAmount(sumPrice(groups[status])))
	}

	_ = file.SetColWidth(sheet, "A", "A", 24)
	_ = file.SetColWidth(sheet, "B", "C", 16)
	return nil
}

func (g *Generator) writeDetail(file *excelize.File, sheet string, contracts []model.ContractView) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	headers := []string{
		"Contract number",
		"Buyer",
		"Farmer",
		"Crop",
		"Price",
		"Agreement date",
		"Delivery date",
		"Payment deadline",
		"Payment ID",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		set(cell, header)
	}

	for i, c := range contracts {
		row := 2 + i
		set(fmt.Sprintf("A%d", row), c.ContractNumber)
		set(fmt.Sprintf("B%d", row), c.BuyerUsername)
		set(fmt.Sprintf("C%d", row), c.FarmerUsername)
		set(fmt.Sprintf("D%d", row), c.Crop)
		set(fmt.Sprintf("E%d", row), formatAmount(c.Price))
		set(fmt.Sprintf("F%d", row), c.AgreementDate)
		set(fmt.Sprintf("G%d", row), c.DeliveryDate)
		set(fmt.Sprintf("H%d", row), formatTimePtr(c.PaymentDeadline))
		set(fmt.Sprintf("I%d", row), formatString(c.PaymentID))
	}

	_ = file.SetColWidth(sheet, "A", "A", 28)
	_ = file.SetColWidth(sheet, "B", "D", 18)
	_ = file.SetColWidth(sheet, "E", "H", 16)
	_ = file.SetColWidth(sheet, "I", "I", 24)
	return nil
}

func groupByStatus(contracts []model.ContractView) map[model.ContractStatus][]model.ContractView {
	groups := make(map[model.ContractStatus][]model.ContractView, len(statusOrder))
	for _, c := range contracts {
		groups[c.Status] = append(groups[c.Status], c)
	}
	return groups
}

func buildSheetName(name string, used map[string]struct{}) string {
	base := sanitizeSheetName(name)
	if len(base) > 31 {
		base = base[:31]
	}

	nameCandidate := base
	counter := 2
	for {
		if _, exists := used[nameCandidate]; !exists {
			return nameCandidate
		}
		suffix := fmt.Sprintf("-%d", counter)
		trimmed := base
		if len(trimmed)+len(suffix) > 31 {
			trimmed = trimmed[:31-len(suffix)]
		}
		nameCandidate = trimmed + suffix
		counter++
	}
}

func sanitizeSheetName(value string) string {
	replacer := strings.NewReplacer(
		"[", "-",
		"]", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"/", "-",
		"\\", "-",
	)
	value = strings.TrimSpace(replacer.Replace(value))
	if value == "" {
		return "Sheet"
	}
	return value
}

func sumPrice(contracts []model.ContractView) float64 {
	total := 0.0
	for _, c := range contracts {
		total += c.Price
	}
	return total
}

func formatAmount(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDateTime(*t)
}

func formatString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
