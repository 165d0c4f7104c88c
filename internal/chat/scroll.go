package chat

// PrependDelta computes the viewport offset adjustment that keeps the user's
// visual anchor stable after older content is prepended.
//
// The caller measures the rendered content height immediately before and
// after applying a prepend, then adds the returned delta to the viewport's
// scroll offset in the same synchronous step as the visual commit. The
// function knows nothing about messages; it is a pure height-diff calculator.
func PrependDelta(heightBefore, heightAfter int) int {
	return heightAfter - heightBefore
}
