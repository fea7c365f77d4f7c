// ABOUTME: Fake player capability for bridge tests
// ABOUTME: Scriptable snapshot, call recording, and error injection
package bridge

import (
	"errors"
	"sync"

	"github.com/amora-project/amora-go/pkg/player"
)

type fakePlayer struct {
	mu    sync.Mutex
	state player.PlayerState
	calls []string

	statusErr error
	failAll   bool

	playlists map[string][]player.SongMeta
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		state: player.PlayerState{
			State:  player.StateStopped,
			Volume: 50,
		},
		playlists: map[string][]player.SongMeta{},
	}
}

func (f *fakePlayer) setState(s player.PlayerState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakePlayer) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.failAll {
		return errors.New("daemon unavailable")
	}
	return nil
}

func (f *fakePlayer) called(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (f *fakePlayer) Play() error {
	if err := f.record("play"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.State = player.StatePlaying
	return nil
}

func (f *fakePlayer) Pause() error {
	if err := f.record("pause"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.State = player.StatePaused
	return nil
}

func (f *fakePlayer) Stop() error {
	if err := f.record("stop"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.State = player.StateStopped
	return nil
}

func (f *fakePlayer) Next() error { return f.record("next") }
func (f *fakePlayer) Previous() error { return f.record("previous") }

func (f *fakePlayer) SetVolume(v int) error {
	if err := f.record("setVolume"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Volume = v
	return nil
}

func (f *fakePlayer) Volume() (int, error) {
	if err := f.record("getVolume"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Volume, nil
}

func (f *fakePlayer) SetRepeat(on bool) error {
	if err := f.record("setRepeat"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Repeat = on
	return nil
}

func (f *fakePlayer) SetRandom(on bool) error {
	if err := f.record("setRandom"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Random = on
	return nil
}

func (f *fakePlayer) Status() (player.PlayerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return player.PlayerState{}, f.statusErr
	}
	return f.state, nil
}

func (f *fakePlayer) Playlists() ([]string, error) {
	if err := f.record("getPlaylists"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.playlists))
	for name := range f.playlists {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakePlayer) PlayPlaylist(name string) error {
	if err := f.record("playPlaylist"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.playlists[name]; !ok {
		return errors.New("no such playlist")
	}
	f.state.Playlist = name
	return nil
}

func (f *fakePlayer) PlaylistSongs(name string) ([]player.SongMeta, error) {
	if err := f.record("getPlaylistSongs"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	songs, ok := f.playlists[name]
	if !ok {
		return nil, errors.New("no such playlist")
	}
	return songs, nil
}

func (f *fakePlayer) CreatePlaylist(name string, files []string) error {
	if err := f.record("createPlaylist"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	songs := make([]player.SongMeta, len(files))
	for i, file := range files {
		songs[i] = player.SongMeta{File: file}
	}
	f.playlists[name] = songs
	return nil
}

func (f *fakePlayer) DeletePlaylist(name string) error {
	if err := f.record("deletePlaylist"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.playlists, name)
	return nil
}

func (f *fakePlayer) PlayTrack(index int) error {
	if err := f.record("playTrack"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if index >= len(f.state.PlaylistTracks) {
		return errors.New("index out of range")
	}
	return nil
}

func (f *fakePlayer) AddTrack(file, playlist string) error { return f.record("addTrack") }
func (f *fakePlayer) RemoveTrack(i int, playlist string) error { return f.record("removeTrack") }
func (f *fakePlayer) ReorderTrack(a, b int, p string) error { return f.record("reorderTrack") }
func (f *fakePlayer) UpdateDatabase() error { return f.record("updateDatabase") }
