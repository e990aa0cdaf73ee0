package analysis

import "testing"

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		wantErr bool
	}{
		{
			name: "minimal count",
			plan: Plan{
				Source:  Source{Kind: SourceData},
				Outputs: []Output{{Name: "total", Op: OutCount}},
			},
		},
		{
			name: "full pipeline",
			plan: Plan{
				Source: Source{Kind: SourceData},
				Transforms: []Transform{
					{Op: OpCleanNumeric, Fields: []string{"price"}},
					{Op: OpFilter, Field: "price", Cmp: "gt", Value: 10},
					{Op: OpSort, Field: "price", Desc: true},
					{Op: OpLimit, N: 5},
				},
				Outputs: []Output{
					{Name: "avg", Op: OutMean, Field: "price"},
					{Name: "top", Op: OutRows},
				},
			},
		},
		{
			name: "sql source",
			plan: Plan{
				Source:  Source{Kind: SourceSQL, Query: "SELECT count(*) AS n FROM data"},
				Outputs: []Output{{Name: "n", Op: OutValue, Field: "n"}},
			},
		},
		{
			name:    "unknown source kind",
			plan:    Plan{Source: Source{Kind: "exec"}, Outputs: []Output{{Name: "x", Op: OutCount}}},
			wantErr: true,
		},
		{
			name:    "sql source without select",
			plan:    Plan{Source: Source{Kind: SourceSQL, Query: "DROP TABLE data"}, Outputs: []Output{{Name: "x", Op: OutCount}}},
			wantErr: true,
		},
		{
			name:    "file source without name",
			plan:    Plan{Source: Source{Kind: SourceFile}, Outputs: []Output{{Name: "x", Op: OutCount}}},
			wantErr: true,
		},
		{
			// Syntactically fine; the absence of a result is a run
			// failure, not a validation failure.
			name:    "no outputs",
			plan:    Plan{Source: Source{Kind: SourceData}},
			wantErr: false,
		},
		{
			name: "duplicate output names",
			plan: Plan{
				Source:  Source{Kind: SourceData},
				Outputs: []Output{{Name: "x", Op: OutCount}, {Name: "x", Op: OutCount}},
			},
			wantErr: true,
		},
		{
			name: "filter with unknown comparison",
			plan: Plan{
				Source:     Source{Kind: SourceData},
				Transforms: []Transform{{Op: OpFilter, Field: "v", Cmp: "matches", Value: 1}},
				Outputs:    []Output{{Name: "x", Op: OutCount}},
			},
			wantErr: true,
		},
		{
			name: "unknown transform",
			plan: Plan{
				Source:     Source{Kind: SourceData},
				Transforms: []Transform{{Op: "shell"}},
				Outputs:    []Output{{Name: "x", Op: OutCount}},
			},
			wantErr: true,
		},
		{
			name: "aggregate without field",
			plan: Plan{
				Source:  Source{Kind: SourceData},
				Outputs: []Output{{Name: "avg", Op: OutMean}},
			},
			wantErr: true,
		},
		{
			name: "plot without spec",
			plan: Plan{
				Source:  Source{Kind: SourceData},
				Outputs: []Output{{Name: "chart", Op: OutPlot}},
			},
			wantErr: true,
		},
		{
			name: "plot with unknown kind",
			plan: Plan{
				Source:  Source{Kind: SourceData},
				Outputs: []Output{{Name: "chart", Op: OutPlot, Plot: &PlotSpec{Kind: "pie3d", Y: "v"}}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
