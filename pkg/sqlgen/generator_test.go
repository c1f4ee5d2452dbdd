package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isaqe-io/isaqe-engine/pkg/apperrors"
	"github.com/isaqe-io/isaqe-engine/pkg/config"
)

func testGenerator() *Generator {
	return NewGenerator(config.PostgresConfig{SampleLimit: 500, MaxLimit: 1000})
}

func TestGenerate_JoinsRelevantTablesAndFilters(t *testing.T) {
	gen := testGenerator()

	columns := map[string][]string{
		"public.claims":    {"claim_id", "customer_id", "status"},
		"public.customers": {"customer_id", "name"},
	}
	fks := [][]string{
		{"public.claims", "customer_id", "public.customers", "customer_id"},
	}

	plans, err := gen.Generate("Show active claims in the last 30 days",
		columns, []string{"public.claims", "public.customers"}, fks)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	want := "SELECT\n" +
		"       public.claims.claim_id AS public_claims_claim_id,\n" +
		"       public.claims.customer_id AS public_claims_customer_id,\n" +
		"       public.claims.status AS public_claims_status,\n" +
		"       public.customers.customer_id AS public_customers_customer_id,\n" +
		"       public.customers.name AS public_customers_name\n" +
		"FROM public.claims LEFT JOIN public.customers ON public.claims.customer_id = public.customers.customer_id\n" +
		"WHERE created_at >= CURRENT_DATE - INTERVAL '30 days' AND status = 'active'\n" +
		"LIMIT 500;"
	assert.Equal(t, want, plans[0].SQL)
	assert.Equal(t, "Show active claims in the last 30 days", plans[0].Purpose)
	assert.Equal(t, "unknown", plans[0].ExpectedRows)
}

func TestGenerate_NoTables(t *testing.T) {
	gen := testGenerator()

	_, err := gen.Generate("anything", nil, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrGenerationEmpty)
}

func TestGenerate_NoColumnsFallsBackToStar(t *testing.T) {
	gen := testGenerator()

	plans, err := gen.Generate("everything", map[string][]string{}, []string{"public.claims"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT\n       *\nFROM public.claims\nLIMIT 500;", plans[0].SQL)
}

func TestGenerate_CapsColumnsPerTable(t *testing.T) {
	gen := testGenerator()

	columns := map[string][]string{
		"public.claims": {"a", "b", "c", "d", "e", "f", "g"},
	}
	plans, err := gen.Generate("everything", columns, []string{"public.claims"}, nil)
	require.NoError(t, err)

	assert.Contains(t, plans[0].SQL, "public.claims.e AS public_claims_e")
	assert.NotContains(t, plans[0].SQL, "public.claims.f")
}

func TestGenerate_SkipsJoinsOutsideRelevantSet(t *testing.T) {
	gen := testGenerator()

	fks := [][]string{
		{"public.claims", "customer_id", "public.customers", "customer_id"},
		{"public.claims", "policy_id", "public.policies", "policy_id"},
	}
	plans, err := gen.Generate("claims", map[string][]string{},
		[]string{"public.claims", "public.customers"}, fks)
	require.NoError(t, err)

	assert.Contains(t, plans[0].SQL, "LEFT JOIN public.customers")
	assert.NotContains(t, plans[0].SQL, "public.policies")
}

func TestBuildWhereClauses(t *testing.T) {
	tests := []struct {
		name   string
		intent string
		want   []string
	}{
		{
			name:   "trailing days window",
			intent: "signups in the last 7 days",
			want:   []string{"created_at >= CURRENT_DATE - INTERVAL '7 days'"},
		},
		{
			name:   "days mentioned without a number defaults to 30",
			intent: "claims filed over the last few days",
			want:   []string{"created_at >= CURRENT_DATE - INTERVAL '30 days'"},
		},
		{
			name:   "active status",
			intent: "list ACTIVE customers",
			want:   []string{"status = 'active'"},
		},
		{
			name:   "iso date floor",
			intent: "claims since 2024-02-01",
			want:   []string{"created_at >= DATE '2024-02-01'"},
		},
		{
			name:   "malformed date is ignored",
			intent: "claims since 2024-13-45",
			want:   nil,
		},
		{
			name:   "no recognized phrases",
			intent: "total premium by region",
			want:   nil,
		},
		{
			name:   "all filters combine",
			intent: "active claims in the last 14 days since 2024-01-01",
			want: []string{
				"created_at >= CURRENT_DATE - INTERVAL '14 days'",
				"status = 'active'",
				"created_at >= DATE '2024-01-01'",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildWhereClauses(tt.intent))
		})
	}
}
