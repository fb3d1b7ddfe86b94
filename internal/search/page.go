package search

// DefaultPageSize is how many results a reply page shows.
const DefaultPageSize = 7

// PageBounds clamps page into the valid range and returns the slice
// bounds for that page. totalPages is at least 1 so an out-of-range
// cursor lands on a real page instead of an error.
func PageBounds(total, page, size int) (start, end, clamped, totalPages int) {
	if size <= 0 {
		size = DefaultPageSize
	}

	totalPages = (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}

	clamped = page
	if clamped < 1 {
		clamped = 1
	}
	if clamped > totalPages {
		clamped = totalPages
	}

	start = (clamped - 1) * size
	if start > total {
		start = total
	}
	end = start + size
	if end > total {
		end = total
	}
	return start, end, clamped, totalPages
}
