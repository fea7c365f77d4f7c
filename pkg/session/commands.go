// ABOUTME: Typed command surface of the session
// ABOUTME: One method per player operation, resolving with response data
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amora-project/amora-go/pkg/messages"
	"github.com/amora-project/amora-go/pkg/player"
)

// Do publishes one command and waits for its response. It resolves
// with the response data on result=true, and fails with a RemoteError
// on result=false, ErrTimeout when unanswered, ErrDisconnected when
// the session closes, or the context error on caller cancellation.
// Cancellation does not revoke the command; the device may still
// execute it.
func (s *Session) Do(ctx context.Context, command string, params map[string]any) (map[string]any, error) {
	cmd := messages.NewCommand(command, params)
	call := &pendingCall{ch: make(chan callOutcome, 1), enqueued: time.Now()}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrDisconnected
	}
	s.pending[cmd.CommandID] = call
	s.mu.Unlock()

	payload, err := messages.Encode(cmd)
	if err == nil {
		err = s.tr.Publish(s.topics.Commands(), payload, s.cfg.QoS, false)
	}
	if err != nil {
		s.mu.Lock()
		delete(s.pending, cmd.CommandID)
		s.mu.Unlock()
		return nil, fmt.Errorf("publish %s: %w", command, err)
	}

	select {
	case out := <-call.ch:
		if out.err != nil {
			return nil, out.err
		}
		if !out.resp.Result {
			return nil, &RemoteError{Message: out.resp.Message}
		}
		return out.resp.Data, nil
	case <-ctx.Done():
		s.mu.Lock()
		_, mine := s.pending[cmd.CommandID]
		if mine {
			delete(s.pending, cmd.CommandID)
		}
		s.mu.Unlock()
		if !mine {
			// The sweeper or a response already claimed the entry;
			// its outcome is in flight.
			out := <-call.ch
			if out.err != nil {
				return nil, out.err
			}
			if !out.resp.Result {
				return nil, &RemoteError{Message: out.resp.Message}
			}
			return out.resp.Data, nil
		}
		return nil, ctx.Err()
	}
}

// Play starts or resumes playback.
func (s *Session) Play(ctx context.Context) error {
	_, err := s.Do(ctx, "play", nil)
	return err
}

// Pause pauses playback.
func (s *Session) Pause(ctx context.Context) error {
	_, err := s.Do(ctx, "pause", nil)
	return err
}

// Stop stops playback.
func (s *Session) Stop(ctx context.Context) error {
	_, err := s.Do(ctx, "stop", nil)
	return err
}

// Next skips to the next track.
func (s *Session) Next(ctx context.Context) error {
	_, err := s.Do(ctx, "next", nil)
	return err
}

// Previous skips to the previous track.
func (s *Session) Previous(ctx context.Context) error {
	_, err := s.Do(ctx, "previous", nil)
	return err
}

// SetVolume sets the volume; the device rejects values outside 0..100.
func (s *Session) SetVolume(ctx context.Context, volume int) error {
	_, err := s.Do(ctx, "setVolume", map[string]any{"volume": volume})
	return err
}

// Volume fetches the current volume.
func (s *Session) Volume(ctx context.Context) (int, error) {
	data, err := s.Do(ctx, "getVolume", nil)
	if err != nil {
		return 0, err
	}
	v, ok := data["volume"].(float64)
	if !ok {
		return 0, fmt.Errorf("getVolume: malformed response data")
	}
	return int(v), nil
}

// SetRepeat toggles repeat mode.
func (s *Session) SetRepeat(ctx context.Context, on bool) error {
	_, err := s.Do(ctx, "setRepeat", map[string]any{"repeat": on})
	return err
}

// SetRandom toggles random mode.
func (s *Session) SetRandom(ctx context.Context, on bool) error {
	_, err := s.Do(ctx, "setRandom", map[string]any{"random": on})
	return err
}

// Status fetches a fresh snapshot from the device and refreshes the
// cache.
func (s *Session) Status(ctx context.Context) (player.PlayerState, error) {
	data, err := s.Do(ctx, "getStatus", nil)
	if err != nil {
		return player.PlayerState{}, err
	}
	var state player.PlayerState
	if err := remarshal(data, &state); err != nil {
		return player.PlayerState{}, fmt.Errorf("getStatus: %w", err)
	}
	state.Normalize()

	s.mu.Lock()
	s.lastState = &state
	s.mu.Unlock()
	return state, nil
}

// Playlists fetches the playlist names. The cache and the playlist
// change event refresh as a side effect of the response routing.
func (s *Session) Playlists(ctx context.Context) ([]string, error) {
	data, err := s.Do(ctx, "getPlaylists", nil)
	if err != nil {
		return nil, err
	}
	names, _ := playlistNames(data)
	return names, nil
}

// PlayPlaylist loads and plays a playlist by name.
func (s *Session) PlayPlaylist(ctx context.Context, name string) error {
	_, err := s.Do(ctx, "playPlaylist", map[string]any{"name": name})
	return err
}

// PlaylistSongs fetches the tracks of a playlist.
func (s *Session) PlaylistSongs(ctx context.Context, name string) ([]player.SongMeta, error) {
	data, err := s.Do(ctx, "getPlaylistSongs", map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	var songs []player.SongMeta
	if err := remarshal(data["songs"], &songs); err != nil {
		return nil, fmt.Errorf("getPlaylistSongs: %w", err)
	}
	return songs, nil
}

// CreatePlaylist creates a playlist from a list of files.
func (s *Session) CreatePlaylist(ctx context.Context, name string, files []string) error {
	params := map[string]any{"name": name}
	if files != nil {
		params["files"] = files
	}
	_, err := s.Do(ctx, "createPlaylist", params)
	return err
}

// DeletePlaylist removes a playlist by name.
func (s *Session) DeletePlaylist(ctx context.Context, name string) error {
	_, err := s.Do(ctx, "deletePlaylist", map[string]any{"name": name})
	return err
}

// PlayTrack plays the track at index in the playlist most recently
// returned by Playlists or PlaylistSongs. A stale index after a
// reorder may be rejected by the device with an invalid argument
// response.
func (s *Session) PlayTrack(ctx context.Context, index int) error {
	_, err := s.Do(ctx, "playTrack", map[string]any{"index": index})
	return err
}

// AddTrack appends a file to a playlist, or to the queue when playlist
// is empty.
func (s *Session) AddTrack(ctx context.Context, file, playlist string) error {
	params := map[string]any{"file": file}
	if playlist != "" {
		params["playlist"] = playlist
	}
	_, err := s.Do(ctx, "addTrack", params)
	return err
}

// RemoveTrack removes the track at index.
func (s *Session) RemoveTrack(ctx context.Context, index int, playlist string) error {
	params := map[string]any{"index": index}
	if playlist != "" {
		params["playlist"] = playlist
	}
	_, err := s.Do(ctx, "removeTrack", params)
	return err
}

// ReorderTrack moves a track between positions.
func (s *Session) ReorderTrack(ctx context.Context, from, to int, playlist string) error {
	params := map[string]any{"from": from, "to": to}
	if playlist != "" {
		params["playlist"] = playlist
	}
	_, err := s.Do(ctx, "reorderTrack", params)
	return err
}

// UpdateDatabase asks the daemon to rescan its music database.
func (s *Session) UpdateDatabase(ctx context.Context) error {
	_, err := s.Do(ctx, "updateDatabase", nil)
	return err
}

// remarshal converts loosely typed response data into a concrete type
// by round-tripping through JSON.
func remarshal(from any, to any) error {
	if from == nil {
		return nil
	}
	raw, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, to)
}
