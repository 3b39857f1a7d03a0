package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ErrPermissionDenied is returned when a capture device may not be used.
var ErrPermissionDenied = errors.New("permission denied")

// Kind is the call type requested by the user.
type Kind int

const (
	Audio Kind = iota
	Video
)

func (k Kind) String() string {
	if k == Video {
		return "video"
	}
	return "audio"
}

// ParseKind maps "audio" and "video" (any case) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio", "a":
		return Audio, nil
	case "video", "v":
		return Video, nil
	}
	return Audio, fmt.Errorf("unknown call kind %q", s)
}

// Track is a local media track that can be attached to a peer connection.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Local() webrtc.TrackLocal

	// Stop halts capture and returns once no further samples are written.
	// Calling it again is a no-op.
	Stop()
	Stopped() bool
}

// Source hands out local tracks for a call.
type Source interface {
	// Acquire returns the tracks for kind: a microphone track for Audio,
	// microphone and camera tracks for Video. On error no tracks are live.
	Acquire(ctx context.Context, kind Kind) ([]Track, error)
}

// Permissions records which capture devices the user allowed.
type Permissions struct {
	Microphone bool
	Camera     bool
}

// AllowAll grants both devices.
var AllowAll = Permissions{Microphone: true, Camera: true}

// DeviceSource produces tracks from Ogg/Opus and IVF/VP8 files, or from
// generated silence when no audio file is set. A camera without a file is a
// negotiated track that carries no frames.
type DeviceSource struct {
	Permissions Permissions
	AudioFile   string
	VideoFile   string

	// StreamID groups the tracks of one call. Defaults to "warpcall".
	StreamID string

	Log *slog.Logger
}

// Acquire implements Source.
func (s *DeviceSource) Acquire(ctx context.Context, kind Kind) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.Permissions.Microphone {
		return nil, fmt.Errorf("%w: microphone access denied", ErrPermissionDenied)
	}
	if kind == Video && !s.Permissions.Camera {
		return nil, fmt.Errorf("%w: camera access denied", ErrPermissionDenied)
	}

	// Open files before starting any pump so a bad path leaves nothing running.
	audioIn, err := openOptional(s.AudioFile)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	var videoIn *os.File
	if kind == Video {
		videoIn, err = openOptional(s.VideoFile)
		if err != nil {
			if audioIn != nil {
				audioIn.Close()
			}
			return nil, fmt.Errorf("open video file: %w", err)
		}
	}

	streamID := s.StreamID
	if streamID == "" {
		streamID = "warpcall"
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	mic, err := newAudioTrack(streamID, audioIn, log)
	if err != nil {
		closeAll(audioIn, videoIn)
		return nil, err
	}
	tracks := []Track{mic}

	if kind == Video {
		cam, err := newVideoTrack(streamID, videoIn, log)
		if err != nil {
			mic.Stop()
			closeAll(videoIn)
			return nil, err
		}
		tracks = append(tracks, cam)
	}

	log.Debug("acquired local media", "kind", kind, "tracks", len(tracks))
	return tracks, nil
}

// StopAll stops every track in tracks.
func StopAll(tracks []Track) {
	for _, t := range tracks {
		t.Stop()
	}
}

func openOptional(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	return os.Open(path)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
