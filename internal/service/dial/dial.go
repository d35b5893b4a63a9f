package dial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/castscan/internal/capability"
	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/service"
)

const (
	// ID is the logical service ID of DIAL services
	ID = "DIAL"

	// SearchTarget is the SSDP search target of DIAL servers
	SearchTarget = "urn:dial-multiscreen-org:service:dial:1"

	// DefaultTimeout is the HTTP request timeout for DIAL REST calls
	DefaultTimeout = 10 * time.Second

	// maxBodyBytes bounds the app status documents read from the device
	maxBodyBytes = 64 << 10
)

// DefaultApps are the applications probed on every DIAL server
var DefaultApps = []string{"YouTube", "Netflix", "Amazon"}

// AppState is the DIAL status of one application
type AppState struct {
	Running bool
	Visible bool
}

// LaunchSession identifies a launched application instance.
// SessionID is the instance URL returned by the server, when it has one.
type LaunchSession struct {
	AppID     string
	SessionID string
}

// Launcher is the capability interface DIAL registers under capability.Launcher
type Launcher interface {
	LaunchApp(ctx context.Context, appID, params string) (*LaunchSession, error)
	CloseApp(ctx context.Context, session *LaunchSession) error
	AppState(ctx context.Context, appID string) (AppState, error)
	HasApplication(ctx context.Context, appID string) (bool, error)
}

// Provider builds DIAL services
type Provider struct {
	// HTTPClient is shared by every service the provider creates
	HTTPClient *http.Client

	mu   sync.RWMutex
	apps []string
}

// NewProvider creates a provider that probes DefaultApps
func NewProvider() *Provider {
	return &Provider{
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		apps:       append([]string(nil), DefaultApps...),
	}
}

// RegisterApp adds an application ID to the probe list
func (p *Provider) RegisterApp(appID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.apps {
		if a == appID {
			return
		}
	}
	p.apps = append(p.apps, appID)
}

// DiscoveryFilter implements service.Provider
func (p *Provider) DiscoveryFilter() service.DiscoveryFilter {
	return service.DiscoveryFilter{ServiceID: ID, Filter: SearchTarget}
}

// New implements service.Provider
func (p *Provider) New(desc *service.Description, cfg *service.Config) (service.Service, error) {
	p.mu.RLock()
	apps := append([]string(nil), p.apps...)
	p.mu.RUnlock()

	s := &Service{
		Base:   service.NewBase(ID, desc, cfg),
		client: p.HTTPClient,
		apps:   apps,
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: DefaultTimeout}
	}
	s.SetConnectable(true)
	s.Register(capability.Launcher, Launcher(s), capability.Normal)
	s.SetCapabilities([]string{
		capability.LauncherApp,
		capability.LauncherAppParams,
		capability.LauncherAppClose,
		capability.LauncherAppState,
	})
	return s, nil
}

// Service is a DIAL server on one device
type Service struct {
	*service.Base

	client *http.Client
	apps   []string
}

// Probe checks which registered applications the server knows and adds
// Launcher.<app> and Launcher.<app>.Params for each of them.
func (s *Service) Probe(ctx context.Context) error {
	if s.applicationURL() == "" {
		logging.Debug("DIAL probe skipped, no application URL",
			zap.String("uuid", s.Description().UUID))
		return nil
	}

	for _, app := range s.apps {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := s.HasApplication(ctx, app)
		if err != nil {
			logging.Debug("DIAL app probe failed", zap.String("app", app), zap.Error(err))
			continue
		}
		if ok {
			s.AddCapabilities("Launcher."+app, "Launcher."+app+".Params")
		}
	}
	return nil
}

// HasApplication reports whether GET <applicationURL>/<appID> succeeds.
func (s *Service) HasApplication(ctx context.Context, appID string) (bool, error) {
	resp, err := s.do(ctx, http.MethodGet, appID, "")
	if err != nil {
		var ce *service.CommandError
		if errors.As(err, &ce) && ce.Code == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	_ = resp.Body.Close()
	return true, nil
}

// LaunchApp POSTs params (may be empty) to the app resource.
func (s *Service) LaunchApp(ctx context.Context, appID, params string) (*LaunchSession, error) {
	resp, err := s.do(ctx, http.MethodPost, appID, params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	session := &LaunchSession{AppID: appID}
	if resp.StatusCode == http.StatusCreated {
		session.SessionID = resp.Header.Get("Location")
	}
	logging.Info("DIAL app launched",
		zap.String("app", appID),
		zap.String("session", session.SessionID))
	return session, nil
}

// CloseApp DELETEs the running instance of the session's app.
func (s *Service) CloseApp(ctx context.Context, session *LaunchSession) error {
	if session == nil {
		return service.NewCommandError(service.CodeGeneric, "no launch session", nil)
	}

	state, err := s.AppState(ctx, session.AppID)
	if err != nil {
		return err
	}
	if !state.Running {
		return nil
	}

	target := session.AppID + "/run"
	switch {
	case strings.HasPrefix(session.SessionID, "http://"), strings.HasPrefix(session.SessionID, "https://"):
		target = session.SessionID
	case session.SessionID != "" && !strings.HasSuffix(strings.TrimSuffix(session.SessionID, "/"), "run"):
		target = session.SessionID
	}

	resp, err := s.do(ctx, http.MethodDelete, target, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// AppState reads the <state> element of the app status document.
func (s *Service) AppState(ctx context.Context, appID string) (AppState, error) {
	resp, err := s.do(ctx, http.MethodGet, appID, "")
	if err != nil {
		return AppState{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return AppState{}, service.NewCommandError(service.CodeGeneric, "read app state", nil)
	}
	return parseAppState(string(body))
}

func parseAppState(body string) (AppState, error) {
	start := strings.Index(body, "<state>")
	end := strings.Index(body, "</state>")
	if start < 0 || end < 0 || end < start {
		return AppState{}, service.NewCommandError(service.CodeGeneric, "Malformed response for app state", nil)
	}
	state := strings.TrimSpace(body[start+len("<state>") : end])
	running := state == "running"
	return AppState{Running: running, Visible: running}, nil
}

func (s *Service) applicationURL() string {
	if desc := s.Description(); desc != nil {
		return desc.ApplicationURL
	}
	return ""
}

// requestURL joins the application URL and an app path. Absolute targets
// are used as they are.
func (s *Service) requestURL(target string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target, nil
	}
	base := s.applicationURL()
	if base == "" {
		return "", service.NewCommandError(service.CodeGeneric, "DIAL application URL not available", nil)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + target, nil
}

// do sends a request and maps non-2xx responses to CommandError. The caller
// closes the body of a successful response.
func (s *Service) do(ctx context.Context, method, target, payload string) (*http.Response, error) {
	u, err := s.requestURL(target)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != "" {
		body = strings.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &service.CommandError{Code: service.CodeGeneric, Message: "build request", Err: err}
	}
	if payload != "" {
		req.Header.Set("Content-Type", `text/plain; charset="utf-8"`)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &service.CommandError{Code: service.CodeGeneric, Message: err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		_ = resp.Body.Close()
		return nil, service.ErrorForStatus(resp.StatusCode, nil)
	}
	return resp, nil
}

// String returns a short human-readable form
func (s *Service) String() string {
	return fmt.Sprintf("DIAL %s", s.applicationURL())
}
