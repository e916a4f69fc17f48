package threshold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// JMD amounts in cents.
const goodsCutoff = 300_000_000

func rules() []domain.ThresholdRule {
	return []domain.ThresholdRule{
		{ID: "r-goods", ProcurementType: "goods", Currency: "JMD", Cutoff: goodsCutoff, IsActive: true},
		{ID: "r-services", ProcurementType: "services", Currency: "JMD", Cutoff: 150_000_000, IsActive: true},
		{ID: "r-works", ProcurementType: "works", Currency: "JMD", Cutoff: 100_000_000, IsActive: false},
		{ID: "r-goods-usd", ProcurementType: "goods", Currency: "USD", Cutoff: 2_000_000, IsActive: true},
	}
}

func request(total int64, currency string, types ...string) *domain.Request {
	return &domain.Request{ID: "req-1", TotalEstimated: total, Currency: currency, ProcurementTypes: types}
}

func TestRequiresExecutiveApproval_GoodsJMD(t *testing.T) {
	assert.True(t, RequiresExecutiveApproval(request(350_000_000, "JMD", "goods"), rules()))
	assert.False(t, RequiresExecutiveApproval(request(299_999_900, "JMD", "goods"), rules()))
}

func TestEvaluate_ExactCutoffDoesNotEscalate(t *testing.T) {
	eval := Evaluate(request(goodsCutoff, "JMD", "goods"), rules())
	assert.False(t, eval.Required)
	assert.Nil(t, eval.Governing)

	eval = Evaluate(request(goodsCutoff+1, "JMD", "goods"), rules())
	assert.True(t, eval.Required)
}

func TestEvaluate_CaseInsensitiveMatch(t *testing.T) {
	eval := Evaluate(request(350_000_000, "jmd", "GOODS"), rules())
	require.True(t, eval.Required)
	assert.Equal(t, "r-goods", eval.Governing.ID)
}

func TestEvaluate_OrAcrossTypesLowestCutoffGoverns(t *testing.T) {
	eval := Evaluate(request(350_000_000, "JMD", "goods", "services"), rules())
	require.True(t, eval.Required)
	assert.Equal(t, "r-services", eval.Governing.ID)

	// Only services is exceeded; that alone is enough.
	eval = Evaluate(request(200_000_000, "JMD", "goods", "services"), rules())
	require.True(t, eval.Required)
	assert.Equal(t, "r-services", eval.Governing.ID)
}

func TestEvaluate_MissingRuleFailsOpen(t *testing.T) {
	eval := Evaluate(request(999_000_000_000, "JMD", "consulting"), rules())
	assert.False(t, eval.Required)
	assert.Equal(t, []string{"consulting/JMD"}, eval.Missing)
	assert.ErrorIs(t, eval.MissingError(), domain.ErrConfigurationMissing)
}

func TestEvaluate_MissingDoesNotMaskOtherTypes(t *testing.T) {
	eval := Evaluate(request(350_000_000, "JMD", "consulting", "goods"), rules())
	assert.True(t, eval.Required)
	assert.Equal(t, []string{"consulting/JMD"}, eval.Missing)
}

func TestEvaluate_InactiveRuleIgnored(t *testing.T) {
	eval := Evaluate(request(500_000_000, "JMD", "works"), rules())
	assert.False(t, eval.Required)
	assert.Equal(t, []string{"works/JMD"}, eval.Missing)
}

func TestEvaluate_CurrencyMustMatch(t *testing.T) {
	eval := Evaluate(request(2_500_000, "USD", "goods"), rules())
	require.True(t, eval.Required)
	assert.Equal(t, "r-goods-usd", eval.Governing.ID)

	eval = Evaluate(request(2_500_000, "EUR", "goods"), rules())
	assert.False(t, eval.Required)
	assert.Equal(t, []string{"goods/EUR"}, eval.Missing)
}

func TestEvaluate_NoTypes(t *testing.T) {
	eval := Evaluate(request(1, "JMD"), rules())
	assert.False(t, eval.Required)
	assert.Empty(t, eval.Missing)
	assert.NoError(t, eval.MissingError())
}

func TestEvaluate_DuplicateRulesStricterWins(t *testing.T) {
	rs := append(rules(), domain.ThresholdRule{
		ID: "r-goods-strict", ProcurementType: "Goods", Currency: "jmd", Cutoff: 100_000_000, IsActive: true,
	})
	eval := Evaluate(request(200_000_000, "JMD", "goods"), rs)
	require.True(t, eval.Required)
	assert.Equal(t, "r-goods-strict", eval.Governing.ID)
}
