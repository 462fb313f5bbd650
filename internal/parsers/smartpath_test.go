package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSmartPathConfig_HappyPath(t *testing.T) {
	html := `
<link rel="canonical" href="https://www.example-toyota.com/searchnew.aspx?model=Tacoma">
<script>
var typesenseClient = new TypesenseInstantSearchAdapter({server: {apiKey: 'search-key', nodes: [{host: 'xyz.a1.typesense.net'}]}});
var indexName = "vehicles-prod";
</script>
`
	req, err := ParseSmartPathConfig(html)
	require.NoError(t, err)
	assert.Equal(t, "https://xyz.a1.typesense.net", req.BaseURL)
	assert.Equal(t, "vehicles-prod", req.IndexName)
	assert.Equal(t, "search-key", req.APIKey)
	assert.Equal(t, "www.example-toyota.com", req.DealerHost)
	assert.Contains(t, req.Params.Get("filter_by"), "model:='Tacoma'")
}

func TestParseSmartPathConfig_MissingConfigErrors(t *testing.T) {
	_, err := ParseSmartPathConfig(`<html>nothing here</html>`)
	require.Error(t, err)
	var target *SmartPathParseError
	assert.ErrorAs(t, err, &target)
}

func TestParseSmartPathDocuments(t *testing.T) {
	docs := []map[string]any{
		{
			"vin":       "1gcuyeed5nz123456",
			"finalPrice": 41900.0,
			"msrp":      45000.0,
			"vdpUrl":    "/new/tacoma.htm",
			"flags":     map[string]any{"inTransit": false},
		},
	}
	rows := ParseSmartPathDocuments(docs, "www.example-toyota.com")
	require.Len(t, rows, 1)
	assert.Equal(t, "1GCUYEED5NZ123456", rows[0].VIN)
	assert.Equal(t, "available", rows[0].Status)
	assert.Equal(t, "https://www.example-toyota.com/new/tacoma.htm", rows[0].VDPURL)
}
