package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDealerSocket_SectionsAndPrices(t *testing.T) {
	markup := "## [2026 Tacoma](https://example-toyota.com/vdp/1)\n" +
		"| VIN | 1GCUYEED5NZ123456 |\n" +
		"| Stock # | A1234B |\n" +
		"| Trim | TRD Off-Road |\n" +
		"Your Price\n$41,900\n" +
		"MSRP\n$45,000\n" +
		"\n## [2026 4Runner](https://example-toyota.com/vdp/2)\n" +
		"| VIN | 5TDDZRFH0PS000001 |\n" +
		"Your Price\n$48,500\n"

	rows := ParseDealerSocket(markup)
	require.Len(t, rows, 2)
	assert.Equal(t, "1GCUYEED5NZ123456", rows[0].VIN)
	assert.Equal(t, "https://example-toyota.com/vdp/1", rows[0].VDPURL)
	assert.Equal(t, "A1234B", rows[0].StockNumber)
	require.NotNil(t, rows[0].AdvertisedPrice)
	require.NotNil(t, rows[0].MSRP)
	assert.Equal(t, "5TDDZRFH0PS000001", rows[1].VIN)
}

func TestParseDealerSocket_EmptyInput(t *testing.T) {
	assert.Empty(t, ParseDealerSocket(""))
}
