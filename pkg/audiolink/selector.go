package audiolink

// SelectBest picks the best candidate: higher quality tier first, then higher
// bitrate, then the earliest candidate. Candidates must not be empty.
func SelectBest(candidates []CandidateFormat) CandidateFormat {
	if len(candidates) == 0 {
		panic("audiolink: SelectBest called with no candidates")
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		if better(candidates[i], candidates[best]) {
			best = i
		}
	}
	return candidates[best]
}

// better reports whether a strictly beats b. Ties keep the earlier candidate.
func better(a, b CandidateFormat) bool {
	if a.Quality != b.Quality {
		return a.Quality > b.Quality
	}
	return normalizedBitrate(a) > normalizedBitrate(b)
}

func normalizedBitrate(c CandidateFormat) int64 {
	if c.Bitrate < 0 {
		return 0
	}
	return c.Bitrate
}
