// ABOUTME: Snapshot comparison used by the status publisher and session
// ABOUTME: Distinguishes full-state changes from position-only drift
package player

// Change describes what differs between two snapshots.
type Change struct {
	State    bool // playback state changed
	Song     bool // current song file changed
	Volume   bool
	Mode     bool // repeat or random changed
	Playlist bool // active playlist name changed
	Position bool // current song position changed
}

// Any reports whether anything beyond position differs.
func (c Change) Any() bool {
	return c.State || c.Song || c.Volume || c.Mode || c.Playlist
}

// Diff compares a previous snapshot against a current one.
func Diff(prev, cur PlayerState) Change {
	return Change{
		State:    prev.State != cur.State,
		Song:     prev.CurrentFile() != cur.CurrentFile(),
		Volume:   prev.Volume != cur.Volume,
		Mode:     prev.Repeat != cur.Repeat || prev.Random != cur.Random,
		Playlist: prev.Playlist != cur.Playlist,
		Position: prev.CurrentPosition() != cur.CurrentPosition(),
	}
}
