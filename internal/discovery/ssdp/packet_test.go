package ssdp

import (
	"net"
	"reflect"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		startLine string
		headers   map[string]string
	}{
		{
			name:      "notify with CRLF",
			data:      "NOTIFY * HTTP/1.1\r\nHOST: 239.255.255.250:1900\r\nNT: urn:dial\r\nNTS: ssdp:alive\r\n\r\n",
			startLine: StartNotify,
			headers:   map[string]string{"HOST": "239.255.255.250:1900", "NT": "urn:dial", "NTS": "ssdp:alive"},
		},
		{
			name:      "response with LF only",
			data:      "HTTP/1.1 200 OK\nST: urn:dial\nLOCATION: http://10.0.0.5:8080/desc.xml\n\n",
			startLine: StartOK,
			headers:   map[string]string{"ST": "urn:dial", "LOCATION": "http://10.0.0.5:8080/desc.xml"},
		},
		{
			name:      "lower case keys are upper cased",
			data:      "HTTP/1.1 200 OK\r\nst: urn:dial\r\nUsn: uuid:abc\r\n",
			startLine: StartOK,
			headers:   map[string]string{"ST": "urn:dial", "USN": "uuid:abc"},
		},
		{
			name:      "values are trimmed",
			data:      "HTTP/1.1 200 OK\r\nST:    urn:dial   \r\n",
			startLine: StartOK,
			headers:   map[string]string{"ST": "urn:dial"},
		},
		{
			name:      "lines without colon are skipped",
			data:      "HTTP/1.1 200 OK\r\ngarbage line\r\nST: urn:dial\r\n",
			startLine: StartOK,
			headers:   map[string]string{"ST": "urn:dial"},
		},
		{
			name:      "unterminated last line is dropped",
			data:      "HTTP/1.1 200 OK\r\nST: urn:dial\r\nUSN: uuid:abc",
			startLine: StartOK,
			headers:   map[string]string{"ST": "urn:dial"},
		},
		{
			name:    "no line ending",
			data:    "HTTP/1.1 200 OK ST: urn:dial",
			headers: map[string]string{},
		},
		{
			name:    "empty",
			data:    "",
			headers: map[string]string{},
		},
		{
			name:    "binary garbage",
			data:    "\x00\x01\x02\xff",
			headers: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Decode([]byte(tt.data), nil)
			if p.StartLine != tt.startLine {
				t.Errorf("StartLine = %q, want %q", p.StartLine, tt.startLine)
			}
			if !reflect.DeepEqual(p.Headers, tt.headers) {
				t.Errorf("Headers = %v, want %v", p.Headers, tt.headers)
			}
		})
	}
}

func TestPacketUUID(t *testing.T) {
	tests := []struct {
		usn    string
		want   string
		wantOK bool
	}{
		{"uuid:ABC::urn:dial-multiscreen-org:service:dial:1", "ABC", true},
		{"uuid:4d696e69-444c-164e-9d41-b827eb5c1a2b", "4d696e69-444c-164e-9d41-b827eb5c1a2b", true},
		{"uuid:ABC::upnp:rootdevice", "ABC", true},
		{"urn:dial-multiscreen-org:service:dial:1", "", false},
		{"   ", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.usn, func(t *testing.T) {
			p := Decode([]byte("NOTIFY * HTTP/1.1\r\nUSN: "+tt.usn+"\r\n"), nil)
			got, ok := p.UUID()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("UUID() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPacketSearchTarget(t *testing.T) {
	notify := Decode([]byte("NOTIFY * HTTP/1.1\r\nNT: urn:a\r\nST: urn:b\r\n"), nil)
	if got := notify.SearchTarget(); got != "urn:a" {
		t.Errorf("NOTIFY SearchTarget() = %q, want urn:a", got)
	}

	resp := Decode([]byte("HTTP/1.1 200 OK\r\nNT: urn:a\r\nST: urn:b\r\n"), nil)
	if got := resp.SearchTarget(); got != "urn:b" {
		t.Errorf("response SearchTarget() = %q, want urn:b", got)
	}

	search := Decode([]byte("M-SEARCH * HTTP/1.1\r\nST: urn:b\r\n"), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2)})
	if !search.IsSearch() {
		t.Error("IsSearch() = false for M-SEARCH")
	}
	if search.Source.IP.String() != "10.0.0.2" {
		t.Errorf("Source = %v", search.Source)
	}

	bye := Decode([]byte("NOTIFY * HTTP/1.1\r\nnts: ssdp:byebye\r\n"), nil)
	if !bye.IsByebye() {
		t.Error("IsByebye() = false for ssdp:byebye")
	}
}

func TestSearchMessage(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{
			target: "urn:dial-multiscreen-org:service:dial:1",
			want: "M-SEARCH * HTTP/1.1\r\n" +
				"HOST: 239.255.255.250:1900\r\n" +
				"MAN: \"ssdp:discover\"\r\n" +
				"ST: urn:dial-multiscreen-org:service:dial:1\r\n" +
				"MX: 5\r\n" +
				"\r\n",
		},
		{
			target: "udap:rootservice",
			want: "M-SEARCH * HTTP/1.1\r\n" +
				"HOST: 239.255.255.250:1900\r\n" +
				"MAN: \"ssdp:discover\"\r\n" +
				"ST: udap:rootservice\r\n" +
				"MX: 5\r\n" +
				"USER-AGENT: UDAP/2.0\r\n" +
				"\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if got := string(SearchMessage(tt.target)); got != tt.want {
				t.Errorf("SearchMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
