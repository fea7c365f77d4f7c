// ABOUTME: Mutex wrapper serializing access to the player capability
// ABOUTME: Daemon adapters are not assumed safe for concurrent use
package bridge

import (
	"sync"

	"github.com/amora-project/amora-go/pkg/player"
)

// lockedPlayer serializes every call so the dispatcher and the status
// publisher can share one daemon connection.
type lockedPlayer struct {
	mu sync.Mutex
	p  player.Player
}

var _ player.Player = (*lockedPlayer)(nil)

func (l *lockedPlayer) Play() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Play()
}

func (l *lockedPlayer) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Pause()
}

func (l *lockedPlayer) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Stop()
}

func (l *lockedPlayer) Next() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Next()
}

func (l *lockedPlayer) Previous() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Previous()
}

func (l *lockedPlayer) SetVolume(volume int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.SetVolume(volume)
}

func (l *lockedPlayer) Volume() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Volume()
}

func (l *lockedPlayer) SetRepeat(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.SetRepeat(on)
}

func (l *lockedPlayer) SetRandom(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.SetRandom(on)
}

func (l *lockedPlayer) Status() (player.PlayerState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Status()
}

func (l *lockedPlayer) Playlists() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Playlists()
}

func (l *lockedPlayer) PlayPlaylist(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.PlayPlaylist(name)
}

func (l *lockedPlayer) PlaylistSongs(name string) ([]player.SongMeta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.PlaylistSongs(name)
}

func (l *lockedPlayer) CreatePlaylist(name string, files []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.CreatePlaylist(name, files)
}

func (l *lockedPlayer) DeletePlaylist(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.DeletePlaylist(name)
}

func (l *lockedPlayer) PlayTrack(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.PlayTrack(index)
}

func (l *lockedPlayer) AddTrack(file, playlist string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.AddTrack(file, playlist)
}

func (l *lockedPlayer) RemoveTrack(index int, playlist string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.RemoveTrack(index, playlist)
}

func (l *lockedPlayer) ReorderTrack(from, to int, playlist string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.ReorderTrack(from, to, playlist)
}

func (l *lockedPlayer) UpdateDatabase() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.UpdateDatabase()
}
