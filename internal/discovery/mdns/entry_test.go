package mdns

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort int
		wantName string
	}{
		{
			name: "ipv4 with port",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "Living Room"},
				Port:          8009,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
			},
			wantIP:   "192.168.4.16",
			wantPort: 8009,
			wantName: "Living Room",
		},
		{
			name: "no port defaults to 80",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "TV"},
				AddrIPv4:      []net.IP{net.ParseIP("10.0.0.5")},
			},
			wantIP:   "10.0.0.5",
			wantPort: 80,
			wantName: "TV",
		},
		{
			name: "fn overrides instance name",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "Chromecast-1234"},
				Port:          8009,
				AddrIPv4:      []net.IP{net.ParseIP("10.0.0.6")},
				Text:          []string{"id=1234", "FN=Den"},
			},
			wantIP:   "10.0.0.6",
			wantPort: 8009,
			wantName: "Den",
		},
		{
			name: "ipv6 only",
			entry: &zeroconf.ServiceEntry{
				AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
			},
			wantNil: true,
		},
		{
			name:    "nil entry",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseServiceEntry(castType, tt.entry, now)
			if tt.wantNil {
				if got != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("parseServiceEntry() = nil")
			}
			if got.IPAddress != tt.wantIP || got.UUID != tt.wantIP {
				t.Errorf("IPAddress, UUID = %s, %s, want %s", got.IPAddress, got.UUID, tt.wantIP)
			}
			if got.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", got.Port, tt.wantPort)
			}
			if got.FriendlyName != tt.wantName {
				t.Errorf("FriendlyName = %q, want %q", got.FriendlyName, tt.wantName)
			}
			if !got.LastDetection.Equal(now) {
				t.Errorf("LastDetection = %v, want %v", got.LastDetection, now)
			}
		})
	}
}

func TestUnescapeInstance(t *testing.T) {
	tests := map[string]string{
		`Living\ Room\ TV`:   "Living Room TV",
		`Samsung\032TV`:      "Samsung TV",
		`a\.b`:               "a.b",
		`plain`:              "plain",
		`trailing\`:          `trailing\`,
		`Caf\195\169\ Radio`: "Café Radio",
	}
	for in, want := range tests {
		if got := unescapeInstance(in); got != want {
			t.Errorf("unescapeInstance(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBrowseType(t *testing.T) {
	tests := map[string]string{
		"_googlecast._tcp.local.": "_googlecast._tcp",
		"_airplay._tcp.local":     "_airplay._tcp",
		"_airplay._tcp":           "_airplay._tcp",
	}
	for in, want := range tests {
		if got := browseType(in); got != want {
			t.Errorf("browseType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestServiceID(t *testing.T) {
	tests := map[string]string{
		GoogleCastType:                 "googlecast",
		AirPlayType:                    "airplay",
		"_raop._tcp":                   "raop",
		"_spotify-connect._tcp.local.": "spotify-connect",
	}
	for in, want := range tests {
		if got := ServiceID(in); got != want {
			t.Errorf("ServiceID(%q) = %q, want %q", in, got, want)
		}
	}

	f := NewServiceProvider(GoogleCastType).DiscoveryFilter()
	if !f.Valid() || f.ServiceID != "googlecast" || f.Filter != GoogleCastType {
		t.Errorf("DiscoveryFilter() = %+v", f)
	}
}
