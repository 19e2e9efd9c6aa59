package excel

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/agro-contracts/internal/model"
)

func TestGenerateWritesSummaryAndStatusSheets(t *testing.T) {
	paymentID := "pay_1"
	register := Register{
		Owner:       "buyer1",
		GeneratedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Contracts: []model.ContractView{
			{ContractNumber: "AGR1-aaaaaa", Crop: "Wheat", Price: 1000, Status: model.ContractStatusCompleted, PaymentID: &paymentID},
			{ContractNumber: "AGR2-bbbbbb", Crop: "Rice", Price: 250.5, Status: model.ContractStatusPendingFarmer},
			{ContractNumber: "AGR3-cccccc", Crop: "Corn", Price: 10, Status: model.ContractStatusCompleted},
		},
	}

	out, err := NewGenerator().Generate(register)
	require.NoError(t, err)

	file, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer file.Close()

	assert.Equal(t, []string{"Summary", "PENDING_FARMER", "COMPLETED"}, file.GetSheetList())

	total, err := file.GetCellValue("Summary", "B4")
	require.NoError(t, err)
	assert.Equal(t, "1260.50", total)

	number, err := file.GetCellValue("COMPLETED", "A3")
	require.NoError(t, err)
	assert.Equal(t, "AGR3-cccccc", number)

	payment, err := file.GetCellValue("COMPLETED", "I2")
	require.NoError(t, err)
	assert.Equal(t, "pay_1", payment)
}

func TestBuildSheetNameDeduplicates(t *testing.T) {
	used := map[string]struct{}{"COMPLETED": {}}
	assert.Equal(t, "COMPLETED-2", buildSheetName("COMPLETED", used))
	assert.Equal(t, "a-b", buildSheetName("a/b", used))
	assert.Equal(t, "Sheet", buildSheetName("  ", used))
}
