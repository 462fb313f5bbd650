package parsers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInventoryWithConfig_PriceRankAndTiebreak(t *testing.T) {
	markup := `
1GCUYEED5NZ123456
Sale Price $42,500
Dealer Price $43,000
Internet Price $41,900
MSRP $45,000
Stock #A1234B
AVAILABLE
`
	rows := ParseInventoryWithConfig(markup, dealerComConfig)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "1GCUYEED5NZ123456", row.VIN)
	require.NotNil(t, row.AdvertisedPrice)
	assert.True(t, row.AdvertisedPrice.Equal(decimal.NewFromFloat(41900)))
	require.NotNil(t, row.MSRP)
	assert.True(t, row.MSRP.Equal(decimal.NewFromFloat(45000)))
	assert.Equal(t, "A1234B", row.StockNumber)
	assert.Equal(t, "available", row.Status)
}

func TestParseInventoryWithConfig_MultipleVINsAreIndependent(t *testing.T) {
	markup := `
1GCUYEED5NZ123456
Sale Price $10,000
SOLD

1GCUYEED5NZ654321
Sale Price $20,000
IN STOCK
`
	rows := ParseInventoryWithConfig(markup, dealerComConfig)
	require.Len(t, rows, 2)
	byVIN := map[string]int{}
	for i, r := range rows {
		byVIN[r.VIN] = i
	}
	assert.Equal(t, "sold", rows[byVIN["1GCUYEED5NZ123456"]].Status)
	assert.Equal(t, "available", rows[byVIN["1GCUYEED5NZ654321"]].Status)
}

func TestParseInventoryWithConfig_NoVINYieldsNoRows(t *testing.T) {
	rows := ParseInventoryWithConfig("no vin content here at all", dealerComConfig)
	assert.Empty(t, rows)
}

func TestParseInventoryWithConfig_EmptyInputYieldsNil(t *testing.T) {
	rows := ParseInventoryWithConfig("", dealerComConfig)
	assert.Nil(t, rows)
}
