package dlna

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/huin/goupnp/soap"
	"go.uber.org/zap"

	"github.com/muurk/castscan/internal/capability"
	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/service"
)

const (
	// ID is the logical service ID of DLNA renderers
	ID = "DLNA"

	// SearchTarget is the SSDP search target of media renderers
	SearchTarget = "urn:schemas-upnp-org:device:MediaRenderer:1"

	AVTransportURN       = "urn:schemas-upnp-org:service:AVTransport:1"
	RenderingControlURN  = "urn:schemas-upnp-org:service:RenderingControl:1"
	ConnectionManagerURN = "urn:schemas-upnp-org:service:ConnectionManager:1"

	// DefaultTimeout is the HTTP timeout for SOAP actions
	DefaultTimeout = 10 * time.Second
)

const (
	avTransport           = "AVTransport"
	renderingControl      = "RenderingControl"
	groupRenderingControl = "GroupRenderingControl"
	connectionManager     = "ConnectionManager"
)

// Capabilities is the fixed capability set of a DLNA renderer.
var Capabilities = []string{
	capability.MediaPlayerDisplayImage,
	capability.MediaPlayerPlayVideo,
	capability.MediaPlayerPlayAudio,
	capability.MediaPlayerPlayPlaylist,
	capability.MediaPlayerClose,
	capability.MediaPlayerSubtitleSRT,
	capability.MediaPlayerMetaDataTitle,
	capability.MediaPlayerMetaDataMimeType,
	capability.MediaPlayerMediaInfoGet,
	capability.MediaPlayerMediaInfoSubscribe,

	capability.MediaControlPlay,
	capability.MediaControlPause,
	capability.MediaControlStop,
	capability.MediaControlSeek,
	capability.MediaControlPosition,
	capability.MediaControlDuration,
	capability.MediaControlPlayState,
	capability.MediaControlPlayStateSubscribe,

	capability.PlaylistControlNext,
	capability.PlaylistControlPrevious,
	capability.PlaylistControlJumpToTrack,
	capability.PlaylistControlSetPlayMode,

	capability.VolumeControlSet,
	capability.VolumeControlGet,
	capability.VolumeControlUpDown,
	capability.VolumeControlSubscribe,
	capability.VolumeControlMuteGet,
	capability.VolumeControlMuteSet,
	capability.VolumeControlMuteSubscribe,
}

// MediaPlayer loads media into the renderer.
type MediaPlayer interface {
	SetMediaURI(ctx context.Context, uri, metadata string) error
}

// MediaControl drives the renderer's transport.
type MediaControl interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	TransportState(ctx context.Context) (string, error)
}

// PlaylistControl moves between tracks.
type PlaylistControl interface {
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
}

// VolumeControl reads and sets the master volume.
type VolumeControl interface {
	Volume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, volume int) error
	Mute(ctx context.Context) (bool, error)
	SetMute(ctx context.Context, mute bool) error
}

// Provider builds DLNA renderer services.
type Provider struct {
	HTTPClient http.Client
}

// NewProvider creates a provider with DefaultTimeout.
func NewProvider() *Provider {
	return &Provider{HTTPClient: http.Client{Timeout: DefaultTimeout}}
}

// DiscoveryFilter implements service.Provider.
func (p *Provider) DiscoveryFilter() service.DiscoveryFilter {
	return service.DiscoveryFilter{ServiceID: ID, Filter: SearchTarget}
}

// New implements service.Provider. Sightings without a device description
// body are rejected with service.ErrMissingLocationXML.
func (p *Provider) New(desc *service.Description, cfg *service.Config) (service.Service, error) {
	if desc == nil || desc.LocationXML == "" {
		return nil, service.ErrMissingLocationXML
	}

	s := &Service{
		Base:   service.NewBase(ID, desc, cfg),
		client: p.HTTPClient,
	}
	s.updateControlURLs(desc)

	s.SetConnectable(true)
	s.Register(capability.MediaPlayer, MediaPlayer(s), capability.Normal)
	s.Register(capability.MediaControl, MediaControl(s), capability.Normal)
	s.Register(capability.VolumeControl, VolumeControl(s), capability.Normal)
	s.Register(capability.PlaylistControl, PlaylistControl(s), capability.Normal)
	s.SetCapabilities(Capabilities)
	return s, nil
}

// Service is a DLNA media renderer.
type Service struct {
	*service.Base

	client http.Client

	mu                   sync.RWMutex
	avTransportURL       string
	renderingControlURL  string
	connectionControlURL string
}

// SetDescription replaces the sighting and recomputes the control URLs.
func (s *Service) SetDescription(desc *service.Description) {
	s.Base.SetDescription(desc)
	s.updateControlURLs(desc)
}

// ControlURLs returns the AVTransport, RenderingControl and ConnectionManager
// control endpoints. Missing endpoints are empty.
func (s *Service) ControlURLs() (avTransport, rendering, connection string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.avTransportURL, s.renderingControlURL, s.connectionControlURL
}

func (s *Service) updateControlURLs(desc *service.Description) {
	if desc == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range desc.Services {
		base := sub.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		switch {
		case strings.Contains(sub.Type, avTransport):
			s.avTransportURL = makeControlURL(base, sub.ControlURL)
		case strings.Contains(sub.Type, renderingControl) && !strings.Contains(sub.Type, groupRenderingControl):
			s.renderingControlURL = makeControlURL(base, sub.ControlURL)
		case strings.Contains(sub.Type, connectionManager):
			s.connectionControlURL = makeControlURL(base, sub.ControlURL)
		}
	}
}

// makeControlURL joins a slash-terminated base with a control path.
func makeControlURL(base, path string) string {
	if path == "" {
		return ""
	}
	if strings.Contains(path, "://") {
		return path
	}
	return base + strings.TrimPrefix(path, "/")
}

// invoke performs a SOAP action against the endpoint serving urn.
func (s *Service) invoke(ctx context.Context, urn, action string, in, out any) error {
	avt, rc, cm := s.ControlURLs()

	var target string
	switch urn {
	case AVTransportURN:
		target = avt
	case RenderingControlURN:
		target = rc
	case ConnectionManagerURN:
		target = cm
	}
	if target == "" {
		return service.NewCommandError(service.CodeGeneric, fmt.Sprintf("no control URL for %s", urn), nil)
	}

	u, err := url.Parse(target)
	if err != nil {
		return &service.CommandError{Code: service.CodeGeneric, Message: "invalid control URL", Err: err}
	}

	client := soap.NewSOAPClient(*u)
	client.HTTPClient = s.client
	if err := client.PerformActionCtx(ctx, urn, action, in, out); err != nil {
		logging.Debug("DLNA action failed",
			zap.String("action", action),
			zap.String("url", target),
			zap.Error(err))
		return &service.CommandError{Code: service.CodeGeneric, Message: action + " failed", Err: err}
	}
	return nil
}

type instanceArgs struct {
	InstanceID string
}

type playArgs struct {
	InstanceID string
	Speed      string
}

type setURIArgs struct {
	InstanceID         string
	CurrentURI         string
	CurrentURIMetaData string
}

type channelArgs struct {
	InstanceID string
	Channel    string
}

type setVolumeArgs struct {
	InstanceID    string
	Channel       string
	DesiredVolume string
}

type setMuteArgs struct {
	InstanceID  string
	Channel     string
	DesiredMute string
}

// SetMediaURI loads uri. metadata is passed through verbatim.
func (s *Service) SetMediaURI(ctx context.Context, uri, metadata string) error {
	return s.invoke(ctx, AVTransportURN, "SetAVTransportURI",
		&setURIArgs{InstanceID: "0", CurrentURI: uri, CurrentURIMetaData: metadata}, nil)
}

func (s *Service) Play(ctx context.Context) error {
	return s.invoke(ctx, AVTransportURN, "Play", &playArgs{InstanceID: "0", Speed: "1"}, nil)
}

func (s *Service) Pause(ctx context.Context) error {
	return s.invoke(ctx, AVTransportURN, "Pause", &instanceArgs{InstanceID: "0"}, nil)
}

func (s *Service) Stop(ctx context.Context) error {
	return s.invoke(ctx, AVTransportURN, "Stop", &instanceArgs{InstanceID: "0"}, nil)
}

func (s *Service) Next(ctx context.Context) error {
	return s.invoke(ctx, AVTransportURN, "Next", &instanceArgs{InstanceID: "0"}, nil)
}

func (s *Service) Previous(ctx context.Context) error {
	return s.invoke(ctx, AVTransportURN, "Previous", &instanceArgs{InstanceID: "0"}, nil)
}

// TransportState returns CurrentTransportState, e.g. "PLAYING".
func (s *Service) TransportState(ctx context.Context) (string, error) {
	var out struct {
		CurrentTransportState string
	}
	if err := s.invoke(ctx, AVTransportURN, "GetTransportInfo", &instanceArgs{InstanceID: "0"}, &out); err != nil {
		return "", err
	}
	return out.CurrentTransportState, nil
}

func (s *Service) Volume(ctx context.Context) (int, error) {
	var out struct {
		CurrentVolume string
	}
	if err := s.invoke(ctx, RenderingControlURN, "GetVolume", &channelArgs{InstanceID: "0", Channel: "Master"}, &out); err != nil {
		return 0, err
	}
	v, err := soap.UnmarshalUi2(out.CurrentVolume)
	if err != nil {
		return 0, &service.CommandError{Code: service.CodeGeneric, Message: "invalid volume", Err: err}
	}
	return int(v), nil
}

func (s *Service) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return service.NewCommandError(service.CodeGeneric, "volume must be between 0 and 100", volume)
	}
	v, _ := soap.MarshalUi2(uint16(volume))
	return s.invoke(ctx, RenderingControlURN, "SetVolume",
		&setVolumeArgs{InstanceID: "0", Channel: "Master", DesiredVolume: v}, nil)
}

func (s *Service) Mute(ctx context.Context) (bool, error) {
	var out struct {
		CurrentMute string
	}
	if err := s.invoke(ctx, RenderingControlURN, "GetMute", &channelArgs{InstanceID: "0", Channel: "Master"}, &out); err != nil {
		return false, err
	}
	m, err := soap.UnmarshalBoolean(out.CurrentMute)
	if err != nil {
		return false, &service.CommandError{Code: service.CodeGeneric, Message: "invalid mute state", Err: err}
	}
	return m, nil
}

func (s *Service) SetMute(ctx context.Context, mute bool) error {
	m, _ := soap.MarshalBoolean(mute)
	return s.invoke(ctx, RenderingControlURN, "SetMute",
		&setMuteArgs{InstanceID: "0", Channel: "Master", DesiredMute: m}, nil)
}
