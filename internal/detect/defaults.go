package detect

// SpotDefaults centralizes every geometric constant of candidate-rectangle
// construction. All fallback coordinate math goes through this one value,
// applied once at spot construction.
type SpotDefaults struct {
	// BaseRenderWidth is the reference pixel width every page is mapped to.
	// Spot rectangles are stored in this space so the client can render the
	// page at a known width and overlay spots without further math.
	BaseRenderWidth float64

	// Rectangle shape in reference pixels
	SpotHeightPx   float64
	SpotMinWidthPx float64
	SpotMaxWidthPx float64

	// Anchor correction: signature boxes render slightly left of and below
	// the underline baseline
	XOffsetPt float64
	YOffsetPx float64

	// Underline recognition
	UnderlineMinRun     int
	UnderlineMinWidthPt float64

	// Keyword/underline pairing: max horizontal-center distance in points
	PairMaxCenterDistPt float64

	// Substring keyword matching applies only to strings shorter than this
	KeywordSubstringMax int

	// Fallback anchors must be at most this many runes
	ShortTextMaxRunes int

	// Candidates whose top-left corners are closer than this (pixels) on
	// the same page are duplicates
	DedupePx float64
}

// Defaults returns the production spot-construction policy.
func Defaults() SpotDefaults {
	return SpotDefaults{
		BaseRenderWidth:     1240,
		SpotHeightPx:        80,
		SpotMinWidthPx:      140,
		SpotMaxWidthPx:      420,
		XOffsetPt:           -4,
		YOffsetPx:           10,
		UnderlineMinRun:     6,
		UnderlineMinWidthPt: 30,
		PairMaxCenterDistPt: 150,
		KeywordSubstringMax: 40,
		ShortTextMaxRunes:   20,
		DedupePx:            12,
	}
}

// Assignment thresholds (PDF point space)
const (
	// labelMatchMaxDy is the vertical acceptance window for page-level
	// label matching
	labelMatchMaxDy = 60.0
	// nearbyWindow is the wider vertical window of the fallback pass
	nearbyWindow = 160.0
)
