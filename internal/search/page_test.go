package search_test

import (
	"testing"

	"github.com/wecom-tools/quarkbot/internal/search"
)

func TestPageBounds(t *testing.T) {
	tests := []struct {
		name                                 string
		total, page, size                    int
		wantStart, wantEnd, wantPage, wantTP int
	}{
		{"first page", 16, 1, 7, 0, 7, 1, 3},
		{"middle page", 16, 2, 7, 7, 14, 2, 3},
		{"last partial page", 16, 3, 7, 14, 16, 3, 3},
		{"page below range clamps to 1", 16, 0, 7, 0, 7, 1, 3},
		{"page above range clamps to last", 16, 99, 7, 14, 16, 3, 3},
		{"empty result set", 0, 1, 7, 0, 0, 1, 1},
		{"single page", 5, 1, 7, 0, 5, 1, 1},
		{"exact multiple", 14, 2, 7, 7, 14, 2, 2},
		{"zero size falls back to default", 16, 1, 0, 0, 7, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, page, tp := search.PageBounds(tt.total, tt.page, tt.size)
			if start != tt.wantStart || end != tt.wantEnd || page != tt.wantPage || tp != tt.wantTP {
				t.Errorf("PageBounds(%d, %d, %d) = (%d, %d, %d, %d), want (%d, %d, %d, %d)",
					tt.total, tt.page, tt.size,
					start, end, page, tp,
					tt.wantStart, tt.wantEnd, tt.wantPage, tt.wantTP)
			}
		})
	}
}
