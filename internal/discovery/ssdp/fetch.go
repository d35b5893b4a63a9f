package ssdp

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/huin/goupnp"
	"golang.org/x/net/html/charset"

	"github.com/muurk/castscan/internal/metrics"
	"github.com/muurk/castscan/internal/service"
	"github.com/muurk/castscan/internal/version"
)

const (
	// FetchTimeout bounds one device description fetch
	FetchTimeout = 10 * time.Second

	// maxDescriptionBytes bounds the description documents read
	maxDescriptionBytes = 1 << 20

	descriptionCacheSize = 256
	descriptionCacheTTL  = 5 * time.Minute
)

// DeviceDescription is the metadata read from a LOCATION URL
type DeviceDescription struct {
	Location  string
	BaseURL   string
	IPAddress string
	Port      int

	DeviceType       string
	FriendlyName     string
	Manufacturer     string
	ModelDescription string
	ModelName        string
	ModelNumber      string
	UDN              string

	ApplicationURL string
	ServiceURI     string
	LocationXML    string
	Services       []service.SubService
	Headers        http.Header
}

// Apply copies the description onto a sighting. Slices and headers are
// copied so cached descriptions stay untouched.
func (d *DeviceDescription) Apply(desc *service.Description) {
	desc.LocationURL = d.Location
	desc.BaseURL = d.BaseURL
	if d.Port != 0 {
		desc.Port = d.Port
	}
	desc.DeviceType = d.DeviceType
	desc.FriendlyName = d.FriendlyName
	desc.Manufacturer = d.Manufacturer
	desc.ModelDescription = d.ModelDescription
	desc.ModelName = d.ModelName
	desc.ModelNumber = d.ModelNumber
	desc.UDN = d.UDN
	desc.ApplicationURL = d.ApplicationURL
	desc.ServiceURI = d.ServiceURI
	desc.LocationXML = d.LocationXML
	desc.Services = append([]service.SubService(nil), d.Services...)
	desc.ResponseHeaders = d.Headers.Clone()
}

// Fetcher resolves a LOCATION URL into a device description
type Fetcher interface {
	Fetch(ctx context.Context, location string) (*DeviceDescription, error)
}

// HTTPFetcher fetches descriptions over HTTP and caches them per location
type HTTPFetcher struct {
	Client *http.Client

	cache   *expirable.LRU[string, *DeviceDescription]
	metrics *metrics.Metrics
}

// NewHTTPFetcher creates a fetcher with a FetchTimeout client
func NewHTTPFetcher(m *metrics.Metrics) *HTTPFetcher {
	return &HTTPFetcher{
		Client:  &http.Client{Timeout: FetchTimeout},
		cache:   expirable.NewLRU[string, *DeviceDescription](descriptionCacheSize, nil, descriptionCacheTTL),
		metrics: m,
	}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) (*DeviceDescription, error) {
	if d, ok := f.cache.Get(location); ok {
		f.metrics.ObserveFetch(metrics.FetchCached)
		return d, nil
	}

	d, err := f.fetch(ctx, location)
	if err != nil {
		f.metrics.ObserveFetch(metrics.FetchError)
		return nil, err
	}
	f.metrics.ObserveFetch(metrics.FetchOK)
	f.cache.Add(location, d)
	return d, nil
}

// Forget drops a cached description
func (f *HTTPFetcher) Forget(location string) {
	f.cache.Remove(location)
}

func (f *HTTPFetcher) fetch(ctx context.Context, location string) (*DeviceDescription, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, &FetchError{Type: FetchErrInvalidURL, Location: location, Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &FetchError{Type: FetchErrInvalidURL, Location: location, Err: errors.New("not an http URL")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &FetchError{Type: FetchErrInvalidURL, Location: location, Err: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, ClassifyFetchError(err, location)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Type: FetchErrHTTP, Location: location, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionBytes))
	if err != nil {
		return nil, ClassifyFetchError(err, location)
	}

	d, err := ParseDescription(u, resp.Header, body)
	if err != nil {
		return nil, &FetchError{Type: FetchErrParse, Location: location, Err: err}
	}
	return d, nil
}

// ParseDescription decodes a UPnP device description fetched from
// location. Services of embedded devices are included.
func ParseDescription(location *url.URL, header http.Header, body []byte) (*DeviceDescription, error) {
	var root goupnp.RootDevice
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode device description: %w", err)
	}

	base := location.Scheme + "://" + location.Host
	if root.URLBaseStr != "" {
		base = strings.TrimSuffix(root.URLBaseStr, "/")
	}

	d := &DeviceDescription{
		Location:         location.String(),
		BaseURL:          base,
		IPAddress:        location.Hostname(),
		Port:             urlPort(location),
		DeviceType:       root.Device.DeviceType,
		FriendlyName:     strings.TrimSpace(root.Device.FriendlyName),
		Manufacturer:     root.Device.Manufacturer,
		ModelDescription: root.Device.ModelDescription,
		ModelName:        root.Device.ModelName,
		ModelNumber:      root.Device.ModelNumber,
		UDN:              root.Device.UDN,
		LocationXML:      string(body),
		Headers:          header.Clone(),
	}

	root.Device.VisitServices(func(s *goupnp.Service) {
		d.Services = append(d.Services, service.SubService{
			Type:        s.ServiceType,
			ID:          s.ServiceId,
			BaseURL:     base,
			SCPDURL:     s.SCPDURL.Str,
			ControlURL:  s.ControlURL.Str,
			EventSubURL: s.EventSubURL.Str,
		})
	})

	if app := header.Get("Application-URL"); app != "" {
		if !strings.HasSuffix(app, "/") {
			app += "/"
		}
		d.ApplicationURL = app
	}

	d.ServiceURI = serviceURI(location.Scheme+"://"+location.Hostname(), body)
	return d, nil
}

// serviceURI appends the port and location of every sec:Capability
// element to uri.
func serviceURI(uri string, body []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := dec.Token()
		if err != nil {
			return uri
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Capability" || !isSecNamespace(se.Name.Space) {
			continue
		}

		var port, loc string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "port":
				port = a.Value
			case "location":
				loc = a.Value
			}
		}
		if port != "" {
			uri += ":" + port
		}
		uri += loc
	}
}

func isSecNamespace(space string) bool {
	return space == "sec" || strings.Contains(space, "sec.co.kr")
}

func urlPort(u *url.URL) int {
	if p, err := strconv.Atoi(u.Port()); err == nil {
		return p
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}
