package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/discovery"
	"github.com/muurk/castscan/internal/discovery/mdns"
	"github.com/muurk/castscan/internal/metrics"
	"github.com/muurk/castscan/internal/service"
)

// fakeBrowser answers every browse with the same entries
type fakeBrowser struct {
	mu      sync.Mutex
	entries []*zeroconf.ServiceEntry
}

func (b *fakeBrowser) Browse(ctx context.Context, serviceType string, entries chan<- *zeroconf.ServiceEntry) error {
	b.mu.Lock()
	queued := append([]*zeroconf.ServiceEntry(nil), b.entries...)
	b.mu.Unlock()

	go func() {
		defer close(entries)
		for _, e := range queued {
			select {
			case entries <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func livingRoom() *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "Living Room"},
		Port:          8009,
		AddrIPv4:      []net.IP{net.ParseIP("10.0.0.5")},
	}
}

func newManager(t *testing.T, m *metrics.Metrics, entries ...*zeroconf.ServiceEntry) *discovery.Manager {
	t.Helper()
	browser := &fakeBrowser{entries: entries}
	mgr := discovery.NewManager(
		discovery.WithProviderFactory(discovery.KindMDNS, mdns.Factory(mdns.WithBrowser(browser))),
		discovery.WithMetrics(m),
	)
	t.Cleanup(func() { mgr.Close() })

	if err := mgr.RegisterDeviceService(mdns.NewServiceProvider(mdns.GoogleCastType), discovery.KindMDNS); err != nil {
		t.Fatalf("RegisterDeviceService() error = %v", err)
	}
	return mgr
}

func startAndWait(t *testing.T, mgr *discovery.Manager, devices int) {
	t.Helper()
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return len(mgr.AllDevices()) == devices })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestServer(t *testing.T, mgr *discovery.Manager, m *metrics.Metrics) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(&Config{Addr: "127.0.0.1:0"}, mgr, m)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s error = %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestNewRequiresManager(t *testing.T) {
	if _, err := New(&Config{}, nil, nil); err == nil {
		t.Error("New(nil manager) error = nil, want error")
	}
}

func TestNewRejectsMissingCertificate(t *testing.T) {
	mgr := discovery.NewManager()
	defer mgr.Close()
	_, err := New(&Config{CertPath: "/nonexistent/cert.pem", KeyPath: "/nonexistent/key.pem"}, mgr, nil)
	if err == nil {
		t.Error("New() with missing certificate error = nil, want error")
	}
}

func TestDevicesEndpoints(t *testing.T) {
	mgr := newManager(t, nil, livingRoom())
	startAndWait(t, mgr, 1)
	_, ts := newTestServer(t, mgr, nil)

	var views []device.View
	if code := getJSON(t, ts.URL+"/devices", &views); code != http.StatusOK {
		t.Fatalf("GET /devices status = %d, want 200", code)
	}
	if len(views) != 1 {
		t.Fatalf("GET /devices len = %d, want 1", len(views))
	}
	v := views[0]
	if v.FriendlyName != "Living Room" || v.IPAddress != "10.0.0.5" {
		t.Errorf("view = %+v, want Living Room at 10.0.0.5", v)
	}
	if len(v.Services) != 1 || v.Services[0].Name != "googlecast" {
		t.Errorf("Services = %+v, want one googlecast service", v.Services)
	}

	var all []device.View
	getJSON(t, ts.URL+"/devices?all=true", &all)
	if len(all) != 1 {
		t.Errorf("GET /devices?all=true len = %d, want 1", len(all))
	}

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"by id", v.ID, http.StatusOK},
		{"by ip", "10.0.0.5", http.StatusOK},
		{"unknown", "nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got device.View
			code := getJSON(t, ts.URL+"/devices/"+tt.id, &got)
			if code != tt.want {
				t.Fatalf("status = %d, want %d", code, tt.want)
			}
			if code == http.StatusOK && got.ID != v.ID {
				t.Errorf("ID = %q, want %q", got.ID, v.ID)
			}
		})
	}
}

func TestDeviceActions(t *testing.T) {
	mgr := newManager(t, nil, livingRoom())
	startAndWait(t, mgr, 1)
	_, ts := newTestServer(t, mgr, nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/devices/10.0.0.5/connect", http.StatusOK},
		{http.MethodPost, "/devices/10.0.0.5/disconnect", http.StatusOK},
		{http.MethodDelete, "/devices/10.0.0.5", http.StatusNoContent},
		{http.MethodPost, "/devices/nope/connect", http.StatusNotFound},
		{http.MethodPost, "/rescan", http.StatusAccepted},
		{http.MethodGet, "/rescan", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRescanWhileStopped(t *testing.T) {
	mgr := newManager(t, nil)
	_, ts := newTestServer(t, mgr, nil)

	resp, err := http.Post(ts.URL+"/rescan", "", nil)
	if err != nil {
		t.Fatalf("POST /rescan error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestStatusEndpoint(t *testing.T) {
	mgr := newManager(t, nil, livingRoom())
	startAndWait(t, mgr, 1)
	_, ts := newTestServer(t, mgr, nil)

	var st Status
	if code := getJSON(t, ts.URL+"/status", &st); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if !st.Searching || st.Providers != 1 || st.Devices != 1 || st.Compatible != 1 {
		t.Errorf("Status = %+v", st)
	}
	if st.PairingLevel != discovery.PairingOff.String() {
		t.Errorf("PairingLevel = %q, want %q", st.PairingLevel, discovery.PairingOff.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	mgr := newManager(t, m, livingRoom())
	startAndWait(t, mgr, 1)
	_, ts := newTestServer(t, mgr, m)

	waitFor(t, func() bool {
		resp, err := http.Get(ts.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), `castscan_device_events_total{kind="device_added"} 1`)
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not supported", service.NotSupported(), http.StatusServiceUnavailable},
		{"http status", service.ErrorForStatus(401, nil), http.StatusUnauthorized},
		{"generic command error", service.NewCommandError(service.CodeGeneric, "boom", nil), http.StatusBadGateway},
		{"wrapped", errors.Join(errors.New("connect DIAL"), service.ErrorForStatus(400, nil)), http.StatusBadRequest},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body error = %v", err)
			}
			if body.Error != tt.err.Error() {
				t.Errorf("error = %q, want %q", body.Error, tt.err.Error())
			}
		})
	}
}

func dialEvents(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) EventMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg EventMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestEventStream(t *testing.T) {
	mgr := newManager(t, nil, livingRoom())
	s, ts := newTestServer(t, mgr, nil)
	conn := dialEvents(t, ts)
	waitFor(t, func() bool { return s.GetActiveConnections() == 1 })

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	first := readMessage(t, conn)
	if first.Type != discovery.DeviceAdded.String() {
		t.Fatalf("Type = %q, want %q", first.Type, discovery.DeviceAdded.String())
	}
	if first.Device == nil || first.Device.FriendlyName != "Living Room" {
		t.Fatalf("Device = %+v, want Living Room", first.Device)
	}

	// A later client is told about devices already known.
	late := dialEvents(t, ts)
	if msg := readMessage(t, late); msg.Type != discovery.DeviceAdded.String() || msg.Device == nil || msg.Device.ID != first.Device.ID {
		t.Errorf("late first message = %+v, want device_added", msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if s.GetActiveConnections() != 0 {
		t.Errorf("GetActiveConnections() after Shutdown = %d, want 0", s.GetActiveConnections())
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("ReadMessage() after Shutdown error = nil, want closed stream")
	}
}

func TestEventStreamEndsWhenManagerCloses(t *testing.T) {
	mgr := newManager(t, nil)
	s, ts := newTestServer(t, mgr, nil)
	conn := dialEvents(t, ts)
	waitFor(t, func() bool { return s.GetActiveConnections() == 1 })

	mgr.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() error = %v, want going away close", err)
	}
}

func TestStartAndShutdown(t *testing.T) {
	mgr := newManager(t, nil)
	s, err := New(&Config{Addr: "127.0.0.1:0"}, mgr, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	addr, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Start(ctx) }()

	var st Status
	waitFor(t, func() bool {
		resp, err := http.Get("http://" + addr.String() + "/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&st) == nil
	})
	if st.Searching {
		t.Error("Searching = true before manager Start")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
