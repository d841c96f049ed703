package procurement

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/cases"
)

func TestMatchItemRequestPrefersExactName(t *testing.T) {
	other := int64(40)
	items := []ItemRequest{
		{ID: 1, Name: "Bolt M8"},
		{ID: 2, Name: "BOLT M8"},
		{ID: 3, Name: "Nut M8", OrderID: &other},
		{ID: 4, Name: "nut m8"},
	}
	fold := cases.Fold()

	tests := []struct {
		name string
		item string
		used []int64
		want int64
	}{
		{name: "exact match over earlier folded line", item: "BOLT M8", want: 2},
		{name: "exact match first", item: "Bolt M8", want: 1},
		{name: "folded fallback", item: "bolt m8", want: 1},
		{name: "folded fallback skips listed line", item: "bolt m8", used: []int64{1}, want: 2},
		{name: "skips line ordered elsewhere", item: "Nut M8", want: 4},
		{name: "all taken returns first candidate", item: "Bolt M8", used: []int64{1, 2}, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			used := make(map[int64]struct{}, len(tc.used))
			for _, id := range tc.used {
				used[id] = struct{}{}
			}
			got := matchItemRequest(items, tc.item, fold, 7, used)
			require.NotNil(t, got)
			require.Equal(t, tc.want, got.ID)
		})
	}

	require.Nil(t, matchItemRequest(items, "Washer", fold, 7, nil))
}
