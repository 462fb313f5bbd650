package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDealerOnRequest_HappyPath(t *testing.T) {
	html := `
<meta property="og:url" content="https://www.example-toyota.com/new-inventory/index.htm?model=Tacoma">
<script id="dealeron_tagging_data" type="application/json">
{"dealerId": "12345", "pageId": "6789", "items": [1,2,3]}
</script>
`
	req, err := BuildDealerOnRequest(html)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.False(t, req.EmptyInventory)
	assert.Equal(t, "https://www.example-toyota.com/api/vhcliaa/vehicle-pages/cosmos/srp/vehicles/12345/6789", req.URL)
	assert.Equal(t, "www.example-toyota.com", req.Params.Get("host"))
	assert.Equal(t, "Tacoma", req.Params.Get("model"))
}

func TestBuildDealerOnRequest_404IsEmptyInventoryNotError(t *testing.T) {
	html := `
<link rel="canonical" href="https://www.example-toyota.com/new-inventory/index.htm">
<script id="dealeron_tagging_data" type="application/json">
{"dealerId": "1", "pageId": "2", "statusCode": 404}
</script>
`
	req, err := BuildDealerOnRequest(html)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.True(t, req.EmptyInventory)
}

func TestBuildDealerOnRequest_MissingTaggingDataErrors(t *testing.T) {
	_, err := BuildDealerOnRequest(`<html>nothing here</html>`)
	require.Error(t, err)
	var target *DealerOnParseError
	assert.ErrorAs(t, err, &target)
}

func TestParseDealerOnDisplayCards(t *testing.T) {
	payload := map[string]any{
		"DisplayCards": []any{
			map[string]any{
				"VehicleCard": map[string]any{
					"VehicleVin":           "1GCUYEED5NZ123456",
					"VehicleInternetPrice": 41900.0,
					"VehicleMsrp":          45000.0,
					"VehicleDetailUrl":     "/new/Toyota/2026-Tacoma-abc.htm",
					"VehicleInTransit":     true,
				},
			},
		},
	}
	rows := ParseDealerOnDisplayCards(payload, "www.example-toyota.com")
	require.Len(t, rows, 1)
	assert.Equal(t, "1GCUYEED5NZ123456", rows[0].VIN)
	assert.Equal(t, "in_transit", rows[0].Status)
	assert.Equal(t, "https://www.example-toyota.com/new/Toyota/2026-Tacoma-abc.htm", rows[0].VDPURL)
	require.NotNil(t, rows[0].AdvertisedPrice)
}
