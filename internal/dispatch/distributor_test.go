package dispatch

import "testing"

func TestDistribute(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		accounts int
		want     []Slice
	}{
		{
			name: "even split",
			n:    10, accounts: 2,
			want: []Slice{{0, 5}, {5, 10}},
		},
		{
			name: "ceil gives earlier accounts more",
			n:    10, accounts: 3,
			want: []Slice{{0, 4}, {4, 8}, {8, 10}},
		},
		{
			name: "more accounts than recipients",
			n:    2, accounts: 4,
			want: []Slice{{0, 1}, {1, 2}, {2, 2}, {2, 2}},
		},
		{
			name: "single account owns everything",
			n:    7, accounts: 1,
			want: []Slice{{0, 7}},
		},
		{
			name: "zero recipients",
			n:    0, accounts: 3,
			want: []Slice{{0, 0}, {0, 0}, {0, 0}},
		},
		{
			name: "trailing empty slice stays in range",
			n:    4, accounts: 3,
			want: []Slice{{0, 2}, {2, 4}, {4, 4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distribute(tt.n, tt.accounts)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d slices, want %d", len(got), len(tt.want))
			}
			covered := 0
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("slice %d = %+v, want %+v", i, got[i], tt.want[i])
				}
				covered += got[i].Len()
			}
			if covered != tt.n {
				t.Errorf("slices cover %d recipients, want %d", covered, tt.n)
			}
		})
	}
}

func TestDistributeNoAccounts(t *testing.T) {
	if got := Distribute(5, 0); got != nil {
		t.Errorf("expected nil for zero accounts, got %+v", got)
	}
}
