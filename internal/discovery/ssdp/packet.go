package ssdp

import (
	"net"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MulticastAddress is the SSDP multicast group
	MulticastAddress = "239.255.255.250"

	// Port is the SSDP port
	Port = 1900

	// MX is the maximum wait, in seconds, requested from responders
	MX = 5

	// Start lines
	StartNotify  = "NOTIFY * HTTP/1.1"
	StartMSearch = "M-SEARCH * HTTP/1.1"
	StartOK      = "HTTP/1.1 200 OK"

	// NTS values
	NTSAlive  = "ssdp:alive"
	NTSByebye = "ssdp:byebye"
	NTSUpdate = "ssdp:update"

	crlf = "\r\n"
	lf   = "\n"
)

// uuidPattern extracts the device UUID from a USN header, e.g.
// "uuid:ABC::urn:dial-multiscreen-org:service:dial:1" yields "ABC".
var uuidPattern = regexp.MustCompile(`uuid:(.+?)(?:::|$)`)

// Packet is a decoded SSDP datagram: the start line plus headers keyed by
// upper-cased name.
type Packet struct {
	StartLine string
	Headers   map[string]string
	Source    *net.UDPAddr
}

// Decode parses a datagram. The first line ends at the first CRLF, or at
// the first LF when there is no CRLF. Data without any line ending yields
// a packet with no start line and no headers. Lines without a colon are
// skipped, as is a trailing line that is not terminated.
func Decode(data []byte, src *net.UDPAddr) *Packet {
	p := &Packet{Headers: make(map[string]string), Source: src}
	text := string(data)

	var pos int
	if eol := strings.Index(text, crlf); eol != -1 {
		p.StartLine = text[:eol]
		pos = eol + len(crlf)
	} else if eol := strings.Index(text, lf); eol != -1 {
		p.StartLine = text[:eol]
		pos = eol + len(lf)
	} else {
		return p
	}

	for pos < len(text) {
		var line string
		rest := text[pos:]
		if eol := strings.Index(rest, crlf); eol != -1 {
			line = rest[:eol]
			pos += eol + len(crlf)
		} else if eol := strings.Index(rest, lf); eol != -1 {
			line = rest[:eol]
			pos += eol + len(lf)
		} else {
			break
		}

		idx := strings.IndexByte(line, ':')
		if idx == -1 {
			continue
		}
		p.Headers[asciiUpper(line[:idx])] = strings.TrimSpace(line[idx+1:])
	}
	return p
}

// Get returns a header value by name, case-insensitively.
func (p *Packet) Get(key string) string {
	return p.Headers[asciiUpper(key)]
}

// IsNotify reports whether the packet is a NOTIFY announcement.
func (p *Packet) IsNotify() bool {
	return p.StartLine == StartNotify
}

// IsSearch reports whether the packet is an M-SEARCH request, normally our
// own search echoed back by the multicast group.
func (p *Packet) IsSearch() bool {
	return p.StartLine == StartMSearch
}

// SearchTarget returns NT for NOTIFY packets and ST otherwise.
func (p *Packet) SearchTarget() string {
	if p.IsNotify() {
		return p.Get("NT")
	}
	return p.Get("ST")
}

// UUID extracts the device UUID from the USN header.
func (p *Packet) UUID() (string, bool) {
	usn := p.Get("USN")
	if strings.TrimSpace(usn) == "" {
		return "", false
	}
	m := uuidPattern.FindStringSubmatch(usn)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// IsByebye reports whether the packet announces a departure.
func (p *Packet) IsByebye() bool {
	return p.Get("NTS") == NTSByebye
}

// SearchMessage builds the M-SEARCH request for target. Targets containing
// "udap" get the UDAP user agent some LG TVs require.
func SearchMessage(target string) []byte {
	var b strings.Builder
	b.WriteString(StartMSearch + crlf)
	b.WriteString("HOST: " + MulticastAddress + ":" + strconv.Itoa(Port) + crlf)
	b.WriteString(`MAN: "ssdp:discover"` + crlf)
	b.WriteString("ST: " + target + crlf)
	b.WriteString("MX: " + strconv.Itoa(MX) + crlf)
	if strings.Contains(target, "udap") {
		b.WriteString("USER-AGENT: UDAP/2.0" + crlf)
	}
	b.WriteString(crlf)
	return []byte(b.String())
}

func asciiUpper(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'a' && c <= 'z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'a' && b[j] <= 'z' {
					b[j] -= 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}
