package completion

// State is the client-side cache of a streamed completion session:
// the items shown in a popup, the selection, and the loading flags.
// It is not safe for concurrent use; callers own the synchronization.
type State struct {
	// Items collected so far from the active session.
	Items []Item
	// Selected is the highlighted index, -1 when nothing is selected.
	Selected int
	// SessionID of the active session, 0 when none.
	SessionID uint64
	// HasMore reports whether the server has more items to stream.
	HasMore bool
	// Loading reports whether a batch is in flight.
	Loading bool

	counter uint64
	// pendingReplace holds the session whose first non-empty batch
	// will replace the displayed items.
	pendingReplace uint64
}

// NewState creates an empty completion state.
func NewState() *State {
	return &State{Selected: -1}
}

// NewSessionID mints the next client session id.
func (s *State) NewSessionID() uint64 {
	s.counter++
	return s.counter
}

// StartSession resets the display for a fresh session.
func (s *State) StartSession(sessionID uint64) {
	s.Items = nil
	s.Selected = -1
	s.SessionID = sessionID
	s.HasMore = true
	s.Loading = true
	s.pendingReplace = 0
}

// StartSessionPreserveItems starts a new session but keeps showing the
// old items until its first non-empty batch arrives, so the popup does
// not blink while typing.
func (s *State) StartSessionPreserveItems(sessionID uint64) {
	s.SessionID = sessionID
	s.Loading = true
	s.HasMore = false
	s.pendingReplace = sessionID
}

// ReceiveBatch folds a server batch into the state. Batches from
// superseded sessions are ignored.
func (s *State) ReceiveBatch(sessionID uint64, items []Item, hasMore bool) {
	if s.SessionID != sessionID {
		return
	}

	if s.pendingReplace == sessionID {
		switch {
		case len(items) > 0:
			s.Items = items
			s.Selected = 0
			s.pendingReplace = 0
		case !hasMore:
			// The new session turned up empty; clear the stale items.
			s.Items = nil
			s.Selected = -1
			s.pendingReplace = 0
		}
		// Empty but more coming: keep showing the old items.
	} else {
		wasEmpty := len(s.Items) == 0
		s.Items = append(s.Items, items...)
		if wasEmpty && len(s.Items) > 0 {
			s.Selected = 0
		}
	}

	s.HasMore = hasMore
	s.Loading = hasMore
}

// Cancel stops loading for the given session without clearing what is
// already displayed.
func (s *State) Cancel(sessionID uint64) {
	if s.SessionID != sessionID {
		return
	}
	s.Loading = false
	s.HasMore = false
	if s.pendingReplace == sessionID {
		s.pendingReplace = 0
	}
}

// Clear drops everything, as when the popup is dismissed.
func (s *State) Clear() {
	s.Items = nil
	s.Selected = -1
	s.SessionID = 0
	s.HasMore = false
	s.Loading = false
	s.pendingReplace = 0
}

// SelectNext moves the selection down, clamped to the last item.
func (s *State) SelectNext() {
	if len(s.Items) == 0 {
		return
	}
	if s.Selected < 0 {
		s.Selected = 0
		return
	}
	if s.Selected < len(s.Items)-1 {
		s.Selected++
	}
}

// SelectPrev moves the selection up, clamped to the first item.
func (s *State) SelectPrev() {
	if len(s.Items) == 0 {
		return
	}
	if s.Selected <= 0 {
		s.Selected = 0
		return
	}
	s.Selected--
}
