package webrtc

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/rtcp"
	"github.com/pion/transport/v4"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"peercall/internal/domain"
)

// pliInterval is how often a keyframe is requested from a remote video
// track.
const pliInterval = 3 * time.Second

// Option adjusts the pion SettingEngine used by a Factory.
type Option func(*pion.SettingEngine)

// WithNet routes all ICE traffic through n, e.g. a vnet.Net in tests.
func WithNet(n transport.Net) Option {
	return func(se *pion.SettingEngine) {
		se.SetNet(n)
	}
}

// Factory creates pion-backed peer connections sharing one API.
type Factory struct {
	api *pion.API
}

var _ domain.ConnectionFactory = (*Factory)(nil)

// NewFactory registers the call codecs and interceptors and builds the pion
// API.
func NewFactory(opts ...Option) (*Factory, error) {
	m := &pion.MediaEngine{}

	opusCodec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:    pion.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}
	if err := m.RegisterCodec(opusCodec, pion.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register Opus: %w", err)
	}

	vp8Codec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:  pion.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: 96,
	}
	if err := m.RegisterCodec(vp8Codec, pion.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register VP8: %w", err)
	}

	h264Codec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:    pion.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 102,
	}
	if err := m.RegisterCodec(h264Codec, pion.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register H264: %w", err)
	}

	m.RegisterFeedback(pion.RTCPFeedback{Type: "nack"}, pion.RTPCodecTypeVideo)
	m.RegisterFeedback(pion.RTCPFeedback{Type: "nack", Parameter: "pli"}, pion.RTPCodecTypeVideo)

	i := &interceptor.Registry{}
	responderFactory, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	i.Add(responderFactory)
	generatorFactory, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generatorFactory)

	se := pion.SettingEngine{
		LoggerFactory: NewLoggerFactory(log.Logger),
	}
	for _, opt := range opts {
		opt(&se)
	}

	return &Factory{
		api: pion.NewAPI(
			pion.WithMediaEngine(m),
			pion.WithInterceptorRegistry(i),
			pion.WithSettingEngine(se),
		),
	}, nil
}

// NewConnection creates a PeerConnection using iceServers.
func (f *Factory) NewConnection(iceServers []domain.ICEServer) (domain.Connection, error) {
	var servers []pion.ICEServer
	for _, s := range iceServers {
		servers = append(servers, pion.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	pc, err := f.api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	return newPeer(pc), nil
}

// Peer wraps a pion PeerConnection.
type Peer struct {
	pc  *pion.PeerConnection
	log zerolog.Logger

	gathered   chan struct{}
	gatherOnce sync.Once
}

var _ domain.Connection = (*Peer)(nil)

func newPeer(pc *pion.PeerConnection) *Peer {
	p := &Peer{
		pc:       pc,
		log:      log.With().Str("component", "webrtc").Logger(),
		gathered: make(chan struct{}),
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			p.log.Debug().Msg("ICE gathering complete")
			p.gatherOnce.Do(func() { close(p.gathered) })
			return
		}
		p.log.Debug().Str("candidate", c.ToJSON().Candidate).Msg("local ICE candidate")
	})
	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		p.log.Info().Str("state", state.String()).Msg("ICE connection state")
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.log.Info().Str("state", state.String()).Msg("peer connection state")
	})
	pc.OnTrack(p.handleTrack)

	return p
}

// AddStream attaches every track of stream. Only streams produced by Source
// can be attached.
func (p *Peer) AddStream(stream domain.Stream) error {
	ls, ok := stream.(*LocalStream)
	if !ok {
		return fmt.Errorf("add stream: unsupported stream type %T", stream)
	}

	for _, track := range ls.tracks {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		// Read incoming RTCP so interceptors see NACKs and receiver reports.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

// CreateOffer creates an SDP offer without applying it.
func (p *Peer) CreateOffer() (domain.Description, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.Description{}, fmt.Errorf("create offer: %w", err)
	}
	return fromPion(offer), nil
}

// CreateAnswer creates an SDP answer to the applied remote offer.
func (p *Peer) CreateAnswer() (domain.Description, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.Description{}, fmt.Errorf("create answer: %w", err)
	}
	return fromPion(answer), nil
}

// SetLocalDescription applies desc locally, which starts candidate gathering.
func (p *Peer) SetLocalDescription(desc domain.Description) error {
	sd, err := toPion(desc)
	if err != nil {
		return err
	}
	if err := p.pc.SetLocalDescription(sd); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	p.log.Debug().Str("type", desc.Type).Msg("local description set")
	return nil
}

// SetRemoteDescription applies the peer's description.
func (p *Peer) SetRemoteDescription(desc domain.Description) error {
	sd, err := toPion(desc)
	if err != nil {
		return err
	}
	if err := p.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	p.log.Debug().Str("type", desc.Type).Msg("remote description set")
	return nil
}

// LocalDescription returns the local description with the candidates
// gathered so far.
func (p *Peer) LocalDescription() (domain.Description, bool) {
	ld := p.pc.LocalDescription()
	if ld == nil {
		return domain.Description{}, false
	}
	return fromPion(*ld), true
}

// GatheringComplete is closed when pion reports the end of candidates.
func (p *Peer) GatheringComplete() <-chan struct{} {
	return p.gathered
}

// OnICEConnectionStateChange registers fn for ICE connection state changes.
func (p *Peer) OnICEConnectionStateChange(fn func(state string)) {
	p.pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		p.log.Info().Str("state", state.String()).Msg("ICE connection state")
		fn(state.String())
	})
}

// Close shuts down the PeerConnection.
func (p *Peer) Close() error {
	return p.pc.Close()
}

func (p *Peer) handleTrack(track *pion.TrackRemote, _ *pion.RTPReceiver) {
	codec := track.Codec()
	p.log.Info().
		Str("kind", track.Kind().String()).
		Str("codec", codec.MimeType).
		Uint8("pt", uint8(codec.PayloadType)).
		Msg("got remote track")

	done := make(chan struct{})
	if track.Kind() == pion.RTPCodecTypeVideo {
		go p.requestKeyframes(track, done)
	}
	go func() {
		defer close(done)
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	}()
}

// requestKeyframes sends a PLI on an interval so the remote keeps producing
// keyframes, until the track ends.
func (p *Peer) requestKeyframes(track *pion.TrackRemote, done <-chan struct{}) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := p.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
			})
			if err != nil {
				p.log.Debug().Err(err).Msg("write PLI")
			}
		}
	}
}

func fromPion(sd pion.SessionDescription) domain.Description {
	return domain.Description{Type: sd.Type.String(), SDP: sd.SDP}
}

func toPion(desc domain.Description) (pion.SessionDescription, error) {
	var t pion.SDPType
	switch desc.Type {
	case domain.DescriptionOffer:
		t = pion.SDPTypeOffer
	case domain.DescriptionAnswer:
		t = pion.SDPTypeAnswer
	case domain.DescriptionPranswer:
		t = pion.SDPTypePranswer
	default:
		return pion.SessionDescription{}, fmt.Errorf("unsupported description type %q", desc.Type)
	}
	return pion.SessionDescription{Type: t, SDP: desc.SDP}, nil
}
