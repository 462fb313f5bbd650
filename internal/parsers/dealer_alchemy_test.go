package parsers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTypesenseConfig(t *testing.T) {
	html := `
var client = new TypesenseInstantsearchAdapter({
  server: {
    apiKey: "search-only-key",
    nodes: [{host: 'xyz-1.a1.typesense.net', port: 443, protocol: 'https'}],
  },
  additionalSearchParameters: { query_by: "model,trim" },
});
var indexName = "vehicles_production";
var srpCondition = 'New';
hitsPerPage = 48;
`
	cfg, err := ExtractTypesenseConfig(html)
	require.NoError(t, err)
	assert.Equal(t, "search-only-key", cfg.APIKey)
	assert.Equal(t, "xyz-1.a1.typesense.net", cfg.Host)
	assert.Equal(t, 443, cfg.Port)
	assert.Equal(t, "https", cfg.Protocol)
	assert.Equal(t, "vehicles_production", cfg.IndexName)
	assert.Equal(t, "New", cfg.Condition)
	assert.Equal(t, 48, cfg.HitsPerPage)
}

func TestExtractTypesenseConfig_MissingFieldsReturnsErrNoConfig(t *testing.T) {
	_, err := ExtractTypesenseConfig(`<html>nothing</html>`)
	assert.ErrorIs(t, err, ErrNoConfig)
}

func TestBuildFilterString(t *testing.T) {
	assert.Equal(t, "a && b", BuildFilterString("a", "", "b"))
	assert.Equal(t, "", BuildFilterString())
}

func TestParseTypesenseHits_MultiSearchShape(t *testing.T) {
	data := map[string]any{
		"results": []any{
			map[string]any{
				"hits": []any{
					map[string]any{
						"document": map[string]any{
							"vin":          "1gcuyeed5nz123456",
							"finalPrice":   41900.0,
							"msrp":         45000.0,
							"vdpUrl":       "/new/tacoma.htm",
							"flags":        map[string]any{"inTransit": true},
							"drivetrain":    "4WD",
							"transmission":  "Automatic",
							"exteriorColor": "Magnetic Gray",
							"interiorColor": "Black",
							"invoicePrice":  40100.0,
						},
					},
				},
			},
		},
	}
	rows := ParseTypesenseHits(data, "https://example-toyota.com/")
	require.Len(t, rows, 1)
	assert.Equal(t, "1GCUYEED5NZ123456", rows[0].VIN)
	assert.Equal(t, "in_transit", rows[0].Status)
	assert.Equal(t, "https://example-toyota.com/new/tacoma.htm", rows[0].VDPURL)
	assert.Equal(t, "4WD", rows[0].Drivetrain)
	assert.Equal(t, "Automatic", rows[0].Transmission)
	assert.Equal(t, "Magnetic Gray", rows[0].ExteriorColor)
	assert.Equal(t, "Black", rows[0].InteriorColor)
	require.NotNil(t, rows[0].InvoicePrice)
	assert.True(t, rows[0].InvoicePrice.Equal(decimal.NewFromFloat(40100.0)))
}
