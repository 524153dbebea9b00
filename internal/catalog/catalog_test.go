package catalog

import "testing"

func TestNew_CompilesAllTools(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"find_missing_skus_yesterday",
		"get_daily_revenue",
		"get_data_freshness",
		"get_revenue_by_sku",
	}
	got := c.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("expected %s at %d, got %s", name, i, got[i])
		}
	}
}

func TestGet_OutsideCatalog(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if c.Get("run_arbitrary_sql") != nil {
		t.Fatal("names outside the catalog must resolve to nil")
	}
}

func TestValidateParams(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		tool    string
		params  []any
		wantErr bool
	}{
		{"get_daily_revenue", []any{"2026-08-22", "2026-08-29"}, false},
		{"get_daily_revenue", []any{"2026-08-22"}, true},
		{"get_daily_revenue", []any{"2026-08-22", "2026-08-29", "extra"}, true},
		{"get_daily_revenue", []any{1, 2}, true},
		{"get_revenue_by_sku", []any{"2026-08-29"}, false},
		{"get_revenue_by_sku", []any{}, true},
		{"get_data_freshness", []any{}, false},
		{"get_data_freshness", []any{"surplus"}, true},
		{"find_missing_skus_yesterday", []any{"2026-08-22", "2026-08-28", "2026-08-29"}, false},
		{"find_missing_skus_yesterday", []any{"2026-08-22", "2026-08-28"}, true},
	}

	for _, tc := range cases {
		td := c.Get(tc.tool)
		if td == nil {
			t.Fatalf("%s missing from catalog", tc.tool)
		}
		err := td.ValidateParams(tc.params)
		if tc.wantErr && err == nil {
			t.Fatalf("%s%v: expected validation error", tc.tool, tc.params)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s%v: unexpected error: %v", tc.tool, tc.params, err)
		}
	}
}
