package copystrategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/internal/apperr"
)

func TestParseTiers(t *testing.T) {
	tiers, err := ParseTiers("1-10:2.0,10-100:1.0,500+:0.1")
	require.NoError(t, err)
	require.Len(t, tiers, 3)

	assert.True(t, tiers[0].Min.Equal(dec("1")))
	assert.True(t, tiers[1].Max.Equal(dec("100")))
	assert.True(t, tiers[2].Unbounded)
	assert.True(t, tiers[2].Multiplier.Equal(dec("0.1")))
}

func TestParseTiers_SortsInput(t *testing.T) {
	tiers, err := ParseTiers("100-500:0.5, 0-100:1")
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.True(t, tiers[0].Min.IsZero())
	assert.Equal(t, "0-100:1,100-500:0.5", FormatTiers(tiers))
}

func TestParseTiers_SortsUnboundedToEnd(t *testing.T) {
	tiers, err := ParseTiers("500+:1.0,1-10:2.0")
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.True(t, tiers[1].Unbounded)
	assert.Equal(t, "1-10:2,500+:1", FormatTiers(tiers))
}

func TestParseTiers_AllowsGaps(t *testing.T) {
	tiers, err := ParseTiers("0-10:2,50-100:1")
	require.NoError(t, err)
	require.Len(t, tiers, 2)
}

func TestParseTiers_Empty(t *testing.T) {
	tiers, err := ParseTiers("  ")
	require.NoError(t, err)
	assert.Empty(t, tiers)
}

func TestParseTiers_Errors(t *testing.T) {
	cases := map[string]string{
		"max not above min":   "10-5:1.0",
		"equal bounds":        "5-5:1.0",
		"unbounded not last":  "0+:1,10-20:2",
		"overlap":             "0-100:1.0,50-200:0.5",
		"missing colon":       "1-10",
		"two colons":          "1-10:2:3",
		"bad multiplier":      "1-10:abc",
		"negative multiplier": "1-10:-1",
		"negative min":        "-5+:1",
		"bad range":           "10:1",
		"empty bound":         "1-:1",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTiers(text)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation), "want validation error, got %v", err)
		})
	}
}

func TestResolveMultiplier(t *testing.T) {
	tiers, err := ParseTiers("0-10:2.0,10-100:1.0")
	require.NoError(t, err)
	cfg := &Config{Tiers: tiers}

	assert.True(t, ResolveMultiplier(cfg, dec("5")).Equal(dec("2")))
	assert.True(t, ResolveMultiplier(cfg, dec("10")).Equal(dec("1")))
	// 超出所有档位时取最后一档
	assert.True(t, ResolveMultiplier(cfg, dec("150")).Equal(dec("1")))
}

func TestResolveMultiplier_Gap(t *testing.T) {
	tiers, err := ParseTiers("0-10:2,50-100:0.5,200+:0.1")
	require.NoError(t, err)
	cfg := &Config{Tiers: tiers}
	// 落在空档 (10,50) 里，没有档命中，取最后一档
	assert.True(t, ResolveMultiplier(cfg, dec("20")).Equal(dec("0.1")))
}

func TestResolveMultiplier_Fallbacks(t *testing.T) {
	assert.True(t, ResolveMultiplier(&Config{}, dec("5")).Equal(dec("1")))

	cfg := &Config{TradeMultiplier: Ptr(dec("1.5"))}
	assert.True(t, ResolveMultiplier(cfg, dec("5")).Equal(dec("1.5")))

	// 配置了分档时忽略单一倍数
	tiers, _ := ParseTiers("0+:3")
	cfg.Tiers = tiers
	assert.True(t, ResolveMultiplier(cfg, dec("5")).Equal(dec("3")))
}
