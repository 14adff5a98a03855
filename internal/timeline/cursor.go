package timeline

// CursorState tracks the upstream continuation token between pages.
type CursorState struct {
	// Cursor is sent with the next request.
	Cursor string
	// LastCursor is the cursor the previous page was requested with.
	LastCursor string
	// SameCursorStreak counts back-to-back pages returning an identical non-empty cursor.
	SameCursorStreak int
}

// Advance records the cursor returned by the page just fetched.
func (s *CursorState) Advance(next string) {
	s.LastCursor = s.Cursor
	s.Cursor = next
	if next != "" && next == s.LastCursor {
		s.SameCursorStreak++
	} else {
		s.SameCursorStreak = 0
	}
}

// Exhausted reports whether the upstream signalled the end of the timeline.
func (s *CursorState) Exhausted() bool {
	return s.Cursor == ""
}
