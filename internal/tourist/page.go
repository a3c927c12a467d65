package tourist

// RefreshPage picks the photo page to request for a new collection.
// It is uniform over [page, pages]. A pin that was never fetched (pages < 1)
// gets page 1, and a stored page past the end is clamped to pages.
func RefreshPage(page, pages int, rng Random) int {
	if pages < 1 {
		return 1
	}
	lo := max(page, 1)
	if lo >= pages {
		return pages
	}
	return lo + rng.IntN(pages-lo+1)
}
