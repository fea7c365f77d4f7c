// ABOUTME: MPD-backed implementation of the player capability
// ABOUTME: Maps MPD status/queue/playlist commands onto the bridge's state model
package mpd

import (
	"fmt"
	"path"
	"strconv"

	"github.com/amora-project/amora-go/pkg/player"
	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog"
)

// Config locates the MPD daemon.
type Config struct {
	// Address is the daemon's host:port. Default localhost:6600.
	Address string

	// Password, when set, authenticates the connection.
	Password string

	Logger zerolog.Logger
}

// Client adapts an MPD connection to player.Player. Not safe for
// concurrent use; the bridge serializes access.
type Client struct {
	cfg  Config
	log  zerolog.Logger
	conn *mpd.Client

	// currentPlaylist tracks the name of the last loaded playlist;
	// MPD itself does not report one.
	currentPlaylist string
}

var _ player.Player = (*Client)(nil)

// New builds a client. No connection is made until Connect or the
// first operation.
func New(cfg Config) *Client {
	if cfg.Address == "" {
		cfg.Address = "localhost:6600"
	}
	return &Client{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "mpd").Logger(),
	}
}

// Connect dials the daemon.
func (c *Client) Connect() error {
	conn, err := dial(c.cfg)
	if err != nil {
		return fmt.Errorf("mpd: connect %s: %w", c.cfg.Address, err)
	}
	c.conn = conn
	c.log.Info().Str("address", c.cfg.Address).Msg("connected to mpd")
	return nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func dial(cfg Config) (*mpd.Client, error) {
	if cfg.Password != "" {
		return mpd.DialAuthenticated("tcp", cfg.Address, cfg.Password)
	}
	return mpd.Dial("tcp", cfg.Address)
}

// ensure pings the daemon and redials a dead connection.
func (c *Client) ensure() error {
	if c.conn != nil {
		if err := c.conn.Ping(); err == nil {
			return nil
		}
		c.log.Warn().Msg("mpd connection lost, reconnecting")
		c.conn.Close()
		c.conn = nil
	}
	return c.Connect()
}

func (c *Client) Play() error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.conn.Play(-1)
}

func (c *Client) Pause() error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.conn.Pause(true)
}

func (c *Client) Stop() error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.conn.Stop()
}

func (c *Client) Next() error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.conn.Next()
}

func (c *Client) Previous() error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.conn.Previous()
}

func (c *Client) SetVolume(volume int) error {
	if err := c.ensure(); err != nil {
		return err
	}
	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}
	return c.conn.SetVolume(volume)
}

func (c *Client) Volume() (int, error) {
	if err := c.ensure(); err != nil {
		return 0, err
	}
	status, err := c.conn.Status()
	if err != nil {
		return 0, err
	}
	return atoi(status["volume"]), nil
}

func (c *Client) SetRepeat(on bool) error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.conn.Repeat(on)
}

func (c *Client) SetRandom(on bool) error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.conn.Random(on)
}

// Status assembles a snapshot from the daemon's status and current
// song.
func (c *Client) Status() (player.PlayerState, error) {
	if err := c.ensure(); err != nil {
		return player.PlayerState{}, err
	}
	status, err := c.conn.Status()
	if err != nil {
		return player.PlayerState{}, err
	}

	var song mpd.Attrs
	if mapState(status["state"]) != player.StateStopped {
		song, err = c.conn.CurrentSong()
		if err != nil {
			c.log.Warn().Err(err).Msg("current song unavailable")
			song = nil
		}
	}

	state := snapshotFromAttrs(status, song)
	state.Playlist = c.currentPlaylist
	return state, nil
}

func (c *Client) Playlists() ([]string, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	entries, err := c.conn.ListPlaylists()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if name := entry["playlist"]; name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// PlayPlaylist replaces the queue with a stored playlist and starts
// playback.
func (c *Client) PlayPlaylist(name string) error {
	if err := c.ensure(); err != nil {
		return err
	}
	if err := c.conn.Clear(); err != nil {
		return err
	}
	if err := c.conn.PlaylistLoad(name, -1, -1); err != nil {
		return err
	}
	if err := c.conn.Play(-1); err != nil {
		return err
	}
	c.currentPlaylist = name
	return nil
}

func (c *Client) PlaylistSongs(name string) ([]player.SongMeta, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	entries, err := c.conn.PlaylistContents(name)
	if err != nil {
		return nil, err
	}

	currentFile := ""
	if song, err := c.conn.CurrentSong(); err == nil {
		currentFile = song["file"]
	}

	songs := make([]player.SongMeta, 0, len(entries))
	for _, entry := range entries {
		meta := songFromAttrs(entry)
		meta.IsCurrent = currentFile != "" && meta.File == currentFile
		songs = append(songs, meta)
	}
	return songs, nil
}

// CreatePlaylist builds the queue from the given files and saves it
// under name, the way the daemon's save command works.
func (c *Client) CreatePlaylist(name string, files []string) error {
	if err := c.ensure(); err != nil {
		return err
	}
	if err := c.conn.Clear(); err != nil {
		return err
	}
	for _, file := range files {
		if err := c.conn.Add(file); err != nil {
			return fmt.Errorf("add %s: %w", file, err)
		}
	}
	return c.conn.PlaylistSave(name)
}

func (c *Client) DeletePlaylist(name string) error {
	if err := c.ensure(); err != nil {
		return err
	}
	return c.conn.PlaylistRemove(name)
}

// PlayTrack plays the queue entry at index. A stale index past the
// queue end reports an invalid argument.
func (c *Client) PlayTrack(index int) error {
	if err := c.ensure(); err != nil {
		return err
	}
	length, err := c.queueLength()
	if err != nil {
		return err
	}
	if index < 0 || index >= length {
		return fmt.Errorf("%w: track index %d outside queue of %d", player.ErrInvalidArgument, index, length)
	}
	return c.conn.Play(index)
}

func (c *Client) AddTrack(file, playlist string) error {
	if err := c.ensure(); err != nil {
		return err
	}
	if playlist == "" {
		return c.conn.Add(file)
	}
	return c.conn.PlaylistAdd(playlist, file)
}

func (c *Client) RemoveTrack(index int, playlist string) error {
	if err := c.ensure(); err != nil {
		return err
	}
	if index < 0 {
		return fmt.Errorf("%w: track index %d", player.ErrInvalidArgument, index)
	}
	if playlist == "" {
		return c.conn.Delete(index, -1)
	}
	return c.conn.PlaylistDelete(playlist, index)
}

func (c *Client) ReorderTrack(from, to int, playlist string) error {
	if err := c.ensure(); err != nil {
		return err
	}
	if from < 0 || to < 0 {
		return fmt.Errorf("%w: positions %d..%d", player.ErrInvalidArgument, from, to)
	}
	if playlist == "" {
		return c.conn.Move(from, -1, to)
	}
	return c.conn.PlaylistMove(playlist, from, to)
}

func (c *Client) UpdateDatabase() error {
	if err := c.ensure(); err != nil {
		return err
	}
	_, err := c.conn.Update("")
	return err
}

func (c *Client) queueLength() (int, error) {
	status, err := c.conn.Status()
	if err != nil {
		return 0, err
	}
	return atoi(status["playlistlength"]), nil
}

// mapState translates MPD's state word into the bridge's vocabulary.
func mapState(s string) player.State {
	switch s {
	case "play":
		return player.StatePlaying
	case "pause":
		return player.StatePaused
	case "stop":
		return player.StateStopped
	case "":
		return player.StateUnknown
	}
	return player.StateUnknown
}

// snapshotFromAttrs maps status and current-song attributes to a
// snapshot. song may be nil when stopped. A daemon-reported player
// error (the status "error" attribute) overrides the playback state.
func snapshotFromAttrs(status, song mpd.Attrs) player.PlayerState {
	state := player.PlayerState{
		State:  mapState(status["state"]),
		Volume: atoi(status["volume"]),
		Repeat: status["repeat"] == "1",
		Random: status["random"] == "1",
	}
	if status["error"] != "" {
		state.State = player.StateError
	}
	if song != nil {
		meta := songFromAttrs(song)
		meta.Position = atof(status["elapsed"])
		if meta.Duration == 0 {
			meta.Duration = atof(status["duration"])
		}
		state.CurrentSong = &meta
	}
	return state
}

// songFromAttrs maps one song entry. Missing tags fall back the way
// the daemon's clients conventionally do: title from the file name,
// unknown artist and album.
func songFromAttrs(attrs mpd.Attrs) player.SongMeta {
	file := attrs["file"]
	title := attrs["Title"]
	if title == "" {
		title = path.Base(file)
	}
	artist := attrs["Artist"]
	if artist == "" {
		artist = "Unknown"
	}
	album := attrs["Album"]
	if album == "" {
		album = "Unknown"
	}
	return player.SongMeta{
		Title:    title,
		Artist:   artist,
		Album:    album,
		File:     file,
		Duration: atof(attrs["duration"]),
	}
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
