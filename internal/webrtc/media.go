package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"peercall/internal/domain"
)

// ErrNoTracksRequested is returned when constraints ask for neither audio
// nor video.
var ErrNoTracksRequested = errors.New("no audio or video requested")

// Source hands out local sample tracks. A capture collaborator pushes
// encoded frames into them with LocalStream.WriteSample.
type Source struct{}

var _ domain.MediaSource = (*Source)(nil)

// NewSource creates a media source.
func NewSource() *Source {
	return &Source{}
}

// Acquire creates an Opus audio track and a VP8 video track as requested.
func (s *Source) Acquire(ctx context.Context, constraints domain.MediaConstraints) (domain.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.MediaAcquisitionError{Err: err}
	}
	if !constraints.Audio && !constraints.Video {
		return nil, &domain.MediaAcquisitionError{Err: ErrNoTracksRequested}
	}

	streamID := uuid.NewString()
	ls := &LocalStream{id: streamID}

	if constraints.Audio {
		track, err := pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", streamID,
		)
		if err != nil {
			return nil, &domain.MediaAcquisitionError{Err: fmt.Errorf("audio track: %w", err)}
		}
		ls.tracks = append(ls.tracks, track)
	}

	if constraints.Video {
		track, err := pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8, ClockRate: 90000},
			"video", streamID,
		)
		if err != nil {
			return nil, &domain.MediaAcquisitionError{Err: fmt.Errorf("video track: %w", err)}
		}
		ls.tracks = append(ls.tracks, track)
	}

	log.Info().Str("component", "media").Str("stream", streamID).Strs("kinds", ls.Kinds()).Msg("local stream acquired")
	return ls, nil
}

// LocalStream is a set of sample tracks sharing one stream id.
type LocalStream struct {
	id     string
	tracks []*pion.TrackLocalStaticSample

	mu     sync.Mutex
	closed bool
}

var _ domain.Stream = (*LocalStream)(nil)

// ID returns the stream id announced in the SDP.
func (ls *LocalStream) ID() string { return ls.id }

// Kinds lists the track kinds in the stream.
func (ls *LocalStream) Kinds() []string {
	kinds := make([]string, 0, len(ls.tracks))
	for _, t := range ls.tracks {
		kinds = append(kinds, t.Kind().String())
	}
	return kinds
}

// WriteSample pushes one encoded frame into the track of the given kind.
func (ls *LocalStream) WriteSample(kind string, data []byte, duration time.Duration) error {
	ls.mu.Lock()
	closed := ls.closed
	ls.mu.Unlock()
	if closed {
		return fmt.Errorf("write %s sample: stream closed", kind)
	}

	for _, t := range ls.tracks {
		if t.Kind().String() == kind {
			return t.WriteSample(media.Sample{Data: data, Duration: duration})
		}
	}
	return fmt.Errorf("write sample: no %s track", kind)
}

// Close stops accepting samples.
func (ls *LocalStream) Close() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.closed = true
	return nil
}
