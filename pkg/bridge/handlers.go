// ABOUTME: Standard command handlers bound to the player capability
// ABOUTME: Parses command params, validates domains, and shapes response data
package bridge

import (
	"errors"
	"fmt"

	"github.com/amora-project/amora-go/pkg/player"
)

// RegisterStandard binds the standard command vocabulary to a player.
// Simple transport commands answer "<command> ok"; query commands carry
// their payload under data.
func (d *Dispatcher) RegisterStandard(p player.Player) {
	simple := map[string]func() error{
		"play":           p.Play,
		"pause":          p.Pause,
		"stop":           p.Stop,
		"next":           p.Next,
		"previous":       p.Previous,
		"updateDatabase": p.UpdateDatabase,
	}
	for name, fn := range simple {
		name, fn := name, fn
		d.Register(name, func(map[string]any) Result {
			if err := fn(); err != nil {
				return fail("%s failed: %v", name, err)
			}
			return ok(name+" ok", nil)
		})
	}

	d.Register("setVolume", func(params map[string]any) Result {
		v, err := intParam(params, "volume")
		if err != nil {
			return invalid(err)
		}
		if v < 0 || v > 100 {
			return invalid(fmt.Errorf("volume %d out of range 0..100", v))
		}
		if err := p.SetVolume(v); err != nil {
			return failOp("setVolume", err)
		}
		return ok("volume set", nil)
	})

	d.Register("getVolume", func(map[string]any) Result {
		v, err := p.Volume()
		if err != nil {
			return failOp("getVolume", err)
		}
		return ok("volume", map[string]any{"volume": v})
	})

	d.Register("setRepeat", func(params map[string]any) Result {
		on, err := boolParam(params, "repeat")
		if err != nil {
			return invalid(err)
		}
		if err := p.SetRepeat(on); err != nil {
			return failOp("setRepeat", err)
		}
		return ok("repeat set", nil)
	})

	d.Register("setRandom", func(params map[string]any) Result {
		on, err := boolParam(params, "random")
		if err != nil {
			return invalid(err)
		}
		if err := p.SetRandom(on); err != nil {
			return failOp("setRandom", err)
		}
		return ok("random set", nil)
	})

	d.Register("getStatus", func(map[string]any) Result {
		state, err := p.Status()
		if err != nil {
			return failOp("getStatus", err)
		}
		state.Normalize()
		return ok("status", map[string]any{
			"state":          string(state.State),
			"currentSong":    state.CurrentSong,
			"volume":         state.Volume,
			"repeat":         state.Repeat,
			"random":         state.Random,
			"playlist":       state.Playlist,
			"playlistTracks": state.PlaylistTracks,
		})
	})

	d.Register("getPlaylists", func(map[string]any) Result {
		names, err := p.Playlists()
		if err != nil {
			return failOp("getPlaylists", err)
		}
		return ok("playlists", map[string]any{"playlists": names})
	})

	d.Register("playPlaylist", func(params map[string]any) Result {
		name, err := stringParam(params, "name")
		if err != nil {
			return invalid(err)
		}
		if err := p.PlayPlaylist(name); err != nil {
			return failOp("playPlaylist", err)
		}
		return ok("playlist loaded", nil)
	})

	d.Register("getPlaylistSongs", func(params map[string]any) Result {
		name, err := stringParam(params, "name")
		if err != nil {
			return invalid(err)
		}
		songs, err := p.PlaylistSongs(name)
		if err != nil {
			return failOp("getPlaylistSongs", err)
		}
		return ok("playlist songs", map[string]any{"songs": songs})
	})

	d.Register("createPlaylist", func(params map[string]any) Result {
		name, err := stringParam(params, "name")
		if err != nil {
			return invalid(err)
		}
		files, err := stringSliceParam(params, "files")
		if err != nil {
			return invalid(err)
		}
		if err := p.CreatePlaylist(name, files); err != nil {
			return failOp("createPlaylist", err)
		}
		return ok("playlist created", nil)
	})

	d.Register("deletePlaylist", func(params map[string]any) Result {
		name, err := stringParam(params, "name")
		if err != nil {
			return invalid(err)
		}
		if err := p.DeletePlaylist(name); err != nil {
			return failOp("deletePlaylist", err)
		}
		return ok("playlist deleted", nil)
	})

	// playTrack's index refers to the playlist listing the caller most
	// recently fetched; a stale index past the end answers invalid
	// argument at execution time.
	d.Register("playTrack", func(params map[string]any) Result {
		index, err := intParam(params, "index")
		if err != nil {
			return invalid(err)
		}
		if index < 0 {
			return invalid(fmt.Errorf("index %d out of range", index))
		}
		if err := p.PlayTrack(index); err != nil {
			return failOp("playTrack", err)
		}
		return ok("track playing", nil)
	})

	d.Register("addTrack", func(params map[string]any) Result {
		file, err := stringParam(params, "file")
		if err != nil {
			return invalid(err)
		}
		playlist, _ := optionalStringParam(params, "playlist")
		if err := p.AddTrack(file, playlist); err != nil {
			return failOp("addTrack", err)
		}
		return ok("track added", nil)
	})

	d.Register("removeTrack", func(params map[string]any) Result {
		index, err := intParam(params, "index")
		if err != nil {
			return invalid(err)
		}
		playlist, _ := optionalStringParam(params, "playlist")
		if err := p.RemoveTrack(index, playlist); err != nil {
			return failOp("removeTrack", err)
		}
		return ok("track removed", nil)
	})

	d.Register("reorderTrack", func(params map[string]any) Result {
		from, err := intParam(params, "from")
		if err != nil {
			return invalid(err)
		}
		to, err := intParam(params, "to")
		if err != nil {
			return invalid(err)
		}
		playlist, _ := optionalStringParam(params, "playlist")
		if err := p.ReorderTrack(from, to, playlist); err != nil {
			return failOp("reorderTrack", err)
		}
		return ok("track reordered", nil)
	})
}

func ok(message string, data map[string]any) Result {
	return Result{OK: true, Message: message, Data: data}
}

func fail(format string, args ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}

func invalid(err error) Result {
	return Result{OK: false, Message: "invalid argument: " + err.Error()}
}

// failOp shapes a player error, keeping invalid-argument failures
// distinguishable from daemon failures.
func failOp(name string, err error) Result {
	if errors.Is(err, player.ErrInvalidArgument) {
		return Result{OK: false, Message: "invalid argument: " + err.Error()}
	}
	return fail("%s failed: %v", name, err)
}

func intParam(params map[string]any, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing param %q", key)
	}
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, fmt.Errorf("param %q must be an integer", key)
	}
	return int(f), nil
}

func boolParam(params map[string]any, key string) (bool, error) {
	v, ok := params[key]
	if !ok {
		return false, fmt.Errorf("missing param %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("param %q must be a boolean", key)
	}
	return b, nil
}

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing param %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("param %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalStringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func stringSliceParam(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("param %q must be a list of strings", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("param %q must be a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
