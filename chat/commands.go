package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tunebridge/tunebridge/session"
	"github.com/tunebridge/tunebridge/spotifyapi"
	"github.com/tunebridge/tunebridge/telemetry"
)

// handleMessage parses a !command and runs the matching handler. userID is the
// chat login of the sender; every handler operates on that user's own Spotify
// session.
func (b *Bot) handleMessage(ctx context.Context, userID, text string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "!"))
	args := fields[1:]

	var err error
	telemetry.TimeFunc(telemetry.CommandDuration, func() {
		switch cmd {
		case "spotify":
			err = b.cmdSpotify(ctx, userID, args)
		case "nowplaying", "np":
			err = b.cmdNowPlaying(ctx, userID)
		case "pause":
			err = b.cmdControl(ctx, userID, cmd)
		case "resume":
			err = b.cmdControl(ctx, userID, cmd)
		case "skip":
			err = b.cmdControl(ctx, userID, cmd)
		case "prev":
			err = b.cmdControl(ctx, userID, cmd)
		case "volume":
			err = b.cmdVolume(ctx, userID, args)
		case "toggle":
			err = b.cmdToggle(ctx, userID)
		case "stats":
			err = b.cmdStats(ctx, userID)
		case "recommendations", "recs":
			err = b.cmdRecommendations(ctx, userID, args)
		case "playlist":
			err = b.cmdPlaylist(ctx, userID)
		default:
			return
		}
		telemetry.IncCommand(cmd)
	})
	if err != nil {
		b.replyError(userID, err)
	}
}

// replyError maps the error taxonomy to user-facing messages. Auth failures
// always carry the authorization link; everything else gets a generic retry
// message with the detail kept in logs only.
func (b *Bot) replyError(userID string, err error) {
	var nae *session.NotAuthenticatedError
	if errors.As(err, &nae) {
		b.say(fmt.Sprintf("@%s connect your Spotify first: %s", userID, nae.AuthURL))
		return
	}
	var rae *session.ReauthRequiredError
	if errors.As(err, &rae) {
		b.say(fmt.Sprintf("@%s your Spotify link expired, please reconnect: %s", userID, rae.AuthURL))
		return
	}
	slog.Warn("command failed", slog.String("user", userID), slog.Any("err", err))
	b.say(fmt.Sprintf("@%s something went wrong, try again in a bit", userID))
}

func (b *Bot) cmdSpotify(ctx context.Context, userID string, args []string) error {
	sub := "connect"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}
	switch sub {
	case "connect":
		url, err := b.mgr.AuthorizeURL(userID)
		if err != nil {
			return err
		}
		b.say(fmt.Sprintf("@%s connect your Spotify here: %s", userID, url))
		return nil
	case "disconnect":
		b.monitor.Stop(userID)
		if err := b.mgr.Disconnect(ctx, userID); err != nil {
			return err
		}
		b.say(fmt.Sprintf("@%s your Spotify account has been disconnected", userID))
		return nil
	default:
		b.say(fmt.Sprintf("@%s usage: !spotify connect | disconnect", userID))
		return nil
	}
}

func (b *Bot) cmdNowPlaying(ctx context.Context, userID string) error {
	client, err := b.mgr.Client(ctx, userID)
	if err != nil {
		return err
	}
	cp, err := client.GetCurrentlyPlaying(ctx)
	if err != nil {
		return err
	}
	if cp == nil {
		b.say(fmt.Sprintf("@%s nothing is playing right now", userID))
		return nil
	}
	bar := ProgressBar(cp.ProgressMs, cp.Track.DurationMs, 12)
	b.say(fmt.Sprintf("@%s 🎵 %s by %s %s %s/%s",
		userID, cp.Track.Name, cp.Track.Artist, bar,
		FormatDuration(cp.ProgressMs), FormatDuration(cp.Track.DurationMs)))
	return nil
}

func (b *Bot) cmdControl(ctx context.Context, userID, action string) error {
	client, err := b.mgr.Client(ctx, userID)
	if err != nil {
		return err
	}
	switch action {
	case "pause":
		err = client.Pause(ctx)
	case "resume":
		err = client.Play(ctx)
	case "skip":
		err = client.Next(ctx)
	case "prev":
		err = client.Previous(ctx)
	}
	if err != nil {
		return err
	}
	b.say(fmt.Sprintf("@%s ✅ %s", userID, action))
	return nil
}

const volumeStep = 10

func (b *Bot) cmdVolume(ctx context.Context, userID string, args []string) error {
	if len(args) == 0 {
		b.say(fmt.Sprintf("@%s usage: !volume up | down", userID))
		return nil
	}
	client, err := b.mgr.Client(ctx, userID)
	if err != nil {
		return err
	}
	st, err := client.GetPlayback(ctx)
	if err != nil {
		return err
	}
	if st == nil {
		b.say(fmt.Sprintf("@%s no active playback device", userID))
		return nil
	}
	vol := st.VolumePercent
	switch strings.ToLower(args[0]) {
	case "up":
		vol += volumeStep
	case "down":
		vol -= volumeStep
	default:
		b.say(fmt.Sprintf("@%s usage: !volume up | down", userID))
		return nil
	}
	if vol < 0 {
		vol = 0
	}
	if vol > 100 {
		vol = 100
	}
	if err := client.SetVolume(ctx, vol); err != nil {
		return err
	}
	b.say(fmt.Sprintf("@%s 🔊 volume set to %d%%", userID, vol))
	return nil
}

// cmdToggle flips track-change announcements for the user. Starting requires a
// working session so a user without credentials gets the auth link instead of
// a silently failing monitor.
func (b *Bot) cmdToggle(ctx context.Context, userID string) error {
	if b.monitor.IsRunning(userID) {
		b.monitor.Stop(userID)
		b.say(fmt.Sprintf("@%s track announcements off", userID))
		return nil
	}
	if _, err := b.mgr.Client(ctx, userID); err != nil {
		return err
	}
	if err := b.monitor.Start(ctx, userID); err != nil {
		if errors.Is(err, session.ErrMonitorLimit) {
			b.say(fmt.Sprintf("@%s too many monitors running right now, try later", userID))
			return nil
		}
		return err
	}
	b.say(fmt.Sprintf("@%s track announcements on", userID))
	return nil
}

func (b *Bot) cmdStats(ctx context.Context, userID string) error {
	client, err := b.mgr.Client(ctx, userID)
	if err != nil {
		return err
	}
	tracks, err := client.TopTracks(ctx, 3, "medium_term")
	if err != nil {
		return err
	}
	artists, err := client.TopArtists(ctx, 3, "medium_term")
	if err != nil {
		return err
	}
	if len(tracks) == 0 && len(artists) == 0 {
		b.say(fmt.Sprintf("@%s no listening stats yet", userID))
		return nil
	}
	b.say(fmt.Sprintf("@%s 📊 top tracks: %s | top artists: %s",
		userID, joinTracks(tracks), joinArtists(artists)))
	return nil
}

// cmdRecommendations suggests tracks seeded from the user's recent top tracks
// and artists, optionally narrowed to a genre given as the first argument.
func (b *Bot) cmdRecommendations(ctx context.Context, userID string, args []string) error {
	client, err := b.mgr.Client(ctx, userID)
	if err != nil {
		return err
	}
	tracks, err := client.TopTracks(ctx, 2, "short_term")
	if err != nil {
		return err
	}
	artists, err := client.TopArtists(ctx, 2, "short_term")
	if err != nil {
		return err
	}
	var seeds spotifyapi.RecommendationSeeds
	for _, tr := range tracks {
		seeds.TrackIDs = append(seeds.TrackIDs, tr.ID)
	}
	for _, a := range artists {
		if a.ID != "" {
			seeds.ArtistIDs = append(seeds.ArtistIDs, a.ID)
		}
	}
	if len(args) > 0 {
		seeds.Genres = []string{strings.ToLower(args[0])}
	}
	if len(seeds.TrackIDs)+len(seeds.ArtistIDs)+len(seeds.Genres) == 0 {
		b.say(fmt.Sprintf("@%s not enough listening history for recommendations yet", userID))
		return nil
	}
	recs, err := client.GetRecommendations(ctx, seeds, 5)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		b.say(fmt.Sprintf("@%s no recommendations found, try again later", userID))
		return nil
	}
	b.say(fmt.Sprintf("@%s 🎶 you might like: %s", userID, joinTracks(recs)))
	return nil
}

// cmdPlaylist creates a playlist from the user's current top tracks.
func (b *Bot) cmdPlaylist(ctx context.Context, userID string) error {
	client, err := b.mgr.Client(ctx, userID)
	if err != nil {
		return err
	}
	tracks, err := client.TopTracks(ctx, 20, "medium_term")
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		b.say(fmt.Sprintf("@%s not enough listening history for a playlist", userID))
		return nil
	}
	me, err := client.Me(ctx)
	if err != nil {
		return err
	}
	pl, err := client.CreatePlaylist(ctx, me.ID, fmt.Sprintf("%s's top tracks", userID), "Generated from recent listening", true)
	if err != nil {
		return err
	}
	uris := make([]string, 0, len(tracks))
	for _, tr := range tracks {
		uris = append(uris, "spotify:track:"+tr.ID)
	}
	if err := client.AddPlaylistTracks(ctx, pl.ID, uris); err != nil {
		return err
	}
	b.say(fmt.Sprintf("@%s 🎧 playlist created: %s", userID, pl.URL))
	return nil
}

func joinTracks(tracks []spotifyapi.Track) string {
	parts := make([]string, 0, len(tracks))
	for _, tr := range tracks {
		parts = append(parts, fmt.Sprintf("%s by %s", tr.Name, tr.Artist))
	}
	return strings.Join(parts, ", ")
}

func joinArtists(artists []spotifyapi.Artist) string {
	parts := make([]string, 0, len(artists))
	for _, a := range artists {
		parts = append(parts, a.Name)
	}
	return strings.Join(parts, ", ")
}
