package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDealHeadline(t *testing.T) {
	tests := []struct {
		headline string
		want     bool
	}{
		{"MSFT to acquire gaming studio", true},
		{"Pfizer Acquired Seagen in 2023", true},
		{"Merger talks stall between ABC and XYZ", true},
		{"Private equity BUYOUT of TWTR", true},
		{"Acquisition of XYZ completed", false},
		{"AAPL beats earnings", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsDealHeadline(tt.headline), tt.headline)
	}
}

func TestFirstTickerIsPermissive(t *testing.T) {
	tests := []struct {
		headline string
		want     string
	}{
		{"MSFT to acquire ATVI", "MSFT"},
		{"A CEO says merger is off", "A"},
		{"GOOGLE merger", ""},
		{"Deal for T-Mobile", "T"},
		{"(NVDA) buyout rumor", "NVDA"},
		{"lowercase only merger", ""},
		{"ABCDEF merger", ""},
		// Word boundaries are ASCII-only; accented letters do not join a word.
		{"ÉABC merger", "ABC"},
	}
	for _, tt := range tests {
		got, ok := FirstTicker(tt.headline)
		assert.Equal(t, tt.want, got, tt.headline)
		assert.Equal(t, tt.want != "", ok, tt.headline)
	}
}

func TestFirstTicker(t *testing.T) {
	got, ok := FirstTicker("Report: IBM to acquire HCP")
	require.True(t, ok)
	assert.Equal(t, "IBM", got)

	_, ok = FirstTicker("no tickers here")
	assert.False(t, ok)
}

func TestFilerID(t *testing.T) {
	id, ok := FilerID("https://www.sec.gov/cgi-bin/browse-edgar?action=getcompany&CIK=0000320193&type=8-K")
	require.True(t, ok)
	assert.Equal(t, "0000320193", id)

	_, ok = FilerID("https://www.sec.gov/Archives/edgar/data/320193/")
	assert.False(t, ok)

	_, ok = FilerID("https://example.com/?cik=123")
	assert.False(t, ok, "pattern is case sensitive")
}

func TestIsDealFiling(t *testing.T) {
	assert.True(t, IsDealFiling("8-K Acquisition of XYZ Corp"))
	assert.True(t, IsDealFiling("8-k - MERGER agreement"))
	assert.False(t, IsDealFiling("8-K Results of Operations"))
	assert.False(t, IsDealFiling("10-Q acquisition update"))
}

func TestIsOwnershipFiling(t *testing.T) {
	assert.True(t, IsOwnershipFiling("SC 13D - Acme Inc (Subject)"))
	assert.True(t, IsOwnershipFiling("sc 13g/a - Widget Co"))
	assert.False(t, IsOwnershipFiling("13D filing"))
}

func TestStakePercent(t *testing.T) {
	v, ok := StakePercent("SC 13D 5.0% stake")
	require.True(t, ok)
	assert.Equal(t, 5.0, v)
	assert.True(t, IsMaterialStake(v))

	v, ok = StakePercent("SC 13D 4.9% stake")
	require.True(t, ok)
	assert.False(t, IsMaterialStake(v))

	_, ok = StakePercent("SC 13G 7% stake")
	assert.False(t, ok, "whole percentages are not matched")
}

func TestParseDollars(t *testing.T) {
	v, err := ParseDollars("$1,250,000")
	require.NoError(t, err)
	assert.Equal(t, 1_250_000.0, v)

	v, err = ParseDollars(" 600000 ")
	require.NoError(t, err)
	assert.Equal(t, 600_000.0, v)

	for _, raw := range []string{"", "$", "n/a", "NaN", "inf"} {
		_, err := ParseDollars(raw)
		assert.Error(t, err, raw)
	}
}

func TestIsLargeBuy(t *testing.T) {
	assert.True(t, IsLargeBuy(500_000))
	assert.True(t, IsLargeBuy(2_000_000))
	assert.False(t, IsLargeBuy(499_999))
}
