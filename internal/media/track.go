package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	// opusFrameDuration is the packetization interval of generated audio.
	opusFrameDuration = 20 * time.Millisecond

	opusClockRate = 48000
)

// opusSilence is a single Opus frame of silence (TOC 0xf8, CELT FB 20ms).
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// sampleTrack feeds a TrackLocalStaticSample from a pump goroutine.
type sampleTrack struct {
	local *webrtc.TrackLocalStaticSample
	kind  webrtc.RTPCodecType

	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

func newSampleTrack(codec webrtc.RTPCodecCapability, id, streamID string, kind webrtc.RTPCodecType) (*sampleTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}
	return &sampleTrack{
		local: local,
		kind:  kind,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}, nil
}

func (t *sampleTrack) ID() string                { return t.local.ID() }
func (t *sampleTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *sampleTrack) Local() webrtc.TrackLocal  { return t.local }
func (t *sampleTrack) Stopped() bool             { return t.stopped.Load() }

func (t *sampleTrack) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		close(t.stop)
	})
	<-t.done
}

// run starts pump in its own goroutine. pump returns when stop is closed.
func (t *sampleTrack) run(pump func(stop <-chan struct{})) {
	go func() {
		defer close(t.done)
		pump(t.stop)
	}()
}

func newAudioTrack(streamID string, in *os.File, log *slog.Logger) (*sampleTrack, error) {
	track, err := newSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: opusClockRate,
		Channels:  2,
	}, "audio", streamID, webrtc.RTPCodecTypeAudio)
	if err != nil {
		return nil, err
	}

	if in == nil {
		track.run(func(stop <-chan struct{}) { pumpSilence(track.local, stop, log) })
		return track, nil
	}

	reader, _, err := oggreader.NewWith(in)
	if err != nil {
		return nil, fmt.Errorf("read ogg header: %w", err)
	}
	track.run(func(stop <-chan struct{}) {
		defer in.Close()
		pumpOgg(track.local, in, reader, stop, log)
	})
	return track, nil
}

func newVideoTrack(streamID string, in *os.File, log *slog.Logger) (*sampleTrack, error) {
	track, err := newSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}, "video", streamID, webrtc.RTPCodecTypeVideo)
	if err != nil {
		return nil, err
	}

	if in == nil {
		track.run(func(stop <-chan struct{}) { <-stop })
		return track, nil
	}

	reader, header, err := ivfreader.NewWith(in)
	if err != nil {
		return nil, fmt.Errorf("read ivf header: %w", err)
	}
	frame := time.Second / 30
	if header.TimebaseDenominator != 0 {
		frame = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}
	track.run(func(stop <-chan struct{}) {
		defer in.Close()
		pumpIVF(track.local, in, reader, frame, stop, log)
	})
	return track, nil
}

func pumpSilence(local *webrtc.TrackLocalStaticSample, stop <-chan struct{}, log *slog.Logger) {
	ticker := time.NewTicker(opusFrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := local.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: opusFrameDuration}); err != nil {
				log.Debug("failed to write audio sample", "error", err)
			}
		}
	}
}

// pumpOgg plays an Ogg/Opus file in a loop, pacing pages by granule position.
func pumpOgg(local *webrtc.TrackLocalStaticSample, in io.ReadSeeker, reader *oggreader.OggReader, stop <-chan struct{}, log *slog.Logger) {
	ticker := time.NewTicker(opusFrameDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if reader, err = rewindOgg(in); err != nil {
				log.Warn("audio file rewind failed", "error", err)
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			log.Warn("audio file read failed", "error", err)
			return
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples)/opusClockRate*1000) * time.Millisecond
		if duration <= 0 {
			duration = opusFrameDuration
		}
		if err := local.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			log.Debug("failed to write audio sample", "error", err)
		}
	}
}

func rewindOgg(in io.ReadSeeker) (*oggreader.OggReader, error) {
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	reader, _, err := oggreader.NewWith(in)
	return reader, err
}

// pumpIVF plays an IVF/VP8 file in a loop at the file's frame rate.
func pumpIVF(local *webrtc.TrackLocalStaticSample, in io.ReadSeeker, reader *ivfreader.IVFReader, frame time.Duration, stop <-chan struct{}, log *slog.Logger) {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		data, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if _, err := in.Seek(0, io.SeekStart); err != nil {
				log.Warn("video file rewind failed", "error", err)
				return
			}
			if reader, _, err = ivfreader.NewWith(in); err != nil {
				log.Warn("video file rewind failed", "error", err)
				return
			}
			continue
		}
		if err != nil {
			log.Warn("video file read failed", "error", err)
			return
		}

		if err := local.WriteSample(pionmedia.Sample{Data: data, Duration: frame}); err != nil {
			log.Debug("failed to write video sample", "error", err)
		}
	}
}
