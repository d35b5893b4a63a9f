package mdns

import (
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/muurk/castscan/internal/service"
)

// DefaultPort is used for entries whose SRV record carries no port
const DefaultPort = 80

// TXT keys carrying device metadata. Cast devices publish fn/md/ve,
// AirPlay receivers publish model/srcvers.
var (
	nameKeys    = []string{"fn", "name"}
	modelKeys   = []string{"md", "model", "am"}
	versionKeys = []string{"ve", "srcvers", "vers"}
)

// parseServiceEntry converts a browse result into a sighting keyed by its
// IPv4 address. It returns nil for entries without an IPv4 address.
func parseServiceEntry(filter string, entry *zeroconf.ServiceEntry, now time.Time) *service.Description {
	if entry == nil {
		return nil
	}

	var ip string
	for _, addr := range entry.AddrIPv4 {
		if v4 := addr.To4(); v4 != nil {
			ip = v4.String()
			break
		}
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	txt := parseText(entry.Text)

	desc := service.NewDescription(filter, ip, ip, port)
	desc.FriendlyName = unescapeInstance(entry.Instance)
	if v := lookup(txt, nameKeys); v != "" {
		desc.FriendlyName = v
	}
	desc.ModelName = lookup(txt, modelKeys)
	desc.Version = lookup(txt, versionKeys)
	desc.BaseURL = "http://" + ip + ":" + strconv.Itoa(port)
	desc.LastDetection = now
	return desc
}

// parseText splits TXT records in key=value format. Keys without a value
// map to the empty string.
func parseText(records []string) map[string]string {
	txt := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		if k == "" {
			continue
		}
		txt[strings.ToLower(k)] = v
	}
	return txt
}

func lookup(txt map[string]string, keys []string) string {
	for _, k := range keys {
		if v := txt[k]; v != "" {
			return v
		}
	}
	return ""
}

// unescapeInstance decodes DNS presentation escapes (\. \  and \DDD) in an
// instance name.
func unescapeInstance(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			n, _ := strconv.Atoi(s[i+1 : i+4])
			if n <= 255 {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i+1])
		i++
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// browseType strips the domain from a filter such as
// "_googlecast._tcp.local." so it can be handed to the resolver.
func browseType(filter string) string {
	t := strings.TrimSuffix(filter, ".")
	t = strings.TrimSuffix(t, "."+strings.TrimSuffix(Domain, "."))
	return t
}
