package summarize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBullets(t *testing.T) {
	raw := `Here is the status:
- Stable on letrozole
- Mild fatigue
  reported at last visit
• ECOG performance status 1
* No new lesions`

	got := parseBullets(raw)

	assert.Equal(t, []string{
		"Stable on letrozole",
		"Mild fatigue reported at last visit",
		"ECOG performance status 1",
		"No new lesions",
	}, got)
}

func TestParseBulletsNoBullets(t *testing.T) {
	assert.Empty(t, parseBullets("I could not find any status information."))
}

func TestDecodeJSONObjectIgnoresSurroundingText(t *testing.T) {
	raw := "Sure, here is the JSON you asked for:\n{\"tnm_staging\": \"T2N0M0\", \"cancer_type\": \"IDC\"}\nLet me know if you need more."

	var out OncologyData
	require.NoError(t, decodeJSONObject(raw, &out))

	assert.Equal(t, "T2N0M0", out.TNMStaging)
	assert.Equal(t, "IDC", out.CancerType)
}

func TestDecodeJSONObjectDropsUnknownFields(t *testing.T) {
	raw := `{"tnm_staging": "T1N0M0", "surprise_field": "ignored", "nested": {"also": "ignored"}}`

	var out OncologyData
	require.NoError(t, decodeJSONObject(raw, &out))

	assert.Equal(t, "T1N0M0", out.TNMStaging)
}

func TestDecodeJSONObjectNoJSON(t *testing.T) {
	var out OncologyData
	assert.Error(t, decodeJSONObject("no structured data here", &out))
}
