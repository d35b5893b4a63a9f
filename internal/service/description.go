package service

import (
	"fmt"
	"net/http"
	"time"
)

// SubService is one entry of a UPnP device's serviceList.
type SubService struct {
	Type        string `json:"service_type"`
	ID          string `json:"service_id"`
	BaseURL     string `json:"base_url,omitempty"`
	SCPDURL     string `json:"scpd_url,omitempty"`
	ControlURL  string `json:"control_url,omitempty"`
	EventSubURL string `json:"event_sub_url,omitempty"`
}

// Description is one sighting of a network service endpoint, as reported
// by a discovery provider. A provider keeps one Description per device UUID
// and emits clones of it, one per matching service ID.
type Description struct {
	UUID          string `json:"uuid"`
	ServiceFilter string `json:"service_filter"`
	ServiceID     string `json:"service_id"`
	IPAddress     string `json:"ip_address"`
	Port          int    `json:"port"`

	FriendlyName     string `json:"friendly_name"`
	Manufacturer     string `json:"manufacturer,omitempty"`
	ModelName        string `json:"model_name,omitempty"`
	ModelNumber      string `json:"model_number,omitempty"`
	ModelDescription string `json:"model_description,omitempty"`
	DeviceType       string `json:"device_type,omitempty"`
	UDN              string `json:"udn,omitempty"`
	Version          string `json:"version,omitempty"`

	// ApplicationURL is the DIAL REST root, always slash-terminated.
	ApplicationURL string `json:"application_url,omitempty"`
	// ServiceURI is built from vendor capability elements in the description.
	ServiceURI  string `json:"service_uri,omitempty"`
	LocationURL string `json:"location_url,omitempty"`
	// LocationXML is the raw device description body.
	LocationXML string `json:"-"`
	BaseURL     string `json:"base_url,omitempty"`

	Services        []SubService `json:"services,omitempty"`
	ResponseHeaders http.Header  `json:"-"`

	LastDetection time.Time `json:"last_detection"`
}

// NewDescription creates a placeholder for a freshly sighted service.
func NewDescription(serviceFilter, uuid, ipAddress string, port int) *Description {
	return &Description{
		UUID:          uuid,
		ServiceFilter: serviceFilter,
		IPAddress:     ipAddress,
		Port:          port,
	}
}

// Clone returns a deep copy. Slices and header maps are not shared.
func (d *Description) Clone() *Description {
	if d == nil {
		return nil
	}
	c := *d
	if d.Services != nil {
		c.Services = make([]SubService, len(d.Services))
		copy(c.Services, d.Services)
	}
	if d.ResponseHeaders != nil {
		c.ResponseHeaders = d.ResponseHeaders.Clone()
	}
	return &c
}

// String returns a short human-readable form for logs.
func (d *Description) String() string {
	return fmt.Sprintf("%s %q (%s) at %s:%d", d.ServiceID, d.FriendlyName, d.UUID, d.IPAddress, d.Port)
}
