package capability

import (
	"fmt"
	"strings"
)

// Priority ranks services on one device that implement the same capability
// interface. The highest priority service serves the capability.
type Priority int

const (
	NotSupported Priority = 0
	VeryLow      Priority = 1
	Low          Priority = 25
	Normal       Priority = 50
	High         Priority = 75
	VeryHigh     Priority = 100
)

// String returns the level name, or the numeric value for custom levels.
func (p Priority) String() string {
	switch p {
	case NotSupported:
		return "NotSupported"
	case VeryLow:
		return "VeryLow"
	case Low:
		return "Low"
	case Normal:
		return "Normal"
	case High:
		return "High"
	case VeryHigh:
		return "VeryHigh"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// Tag identifies a capability interface. Services register one
// implementation per tag and devices resolve capabilities by tag.
type Tag int

const (
	Launcher Tag = iota + 1
	MediaPlayer
	MediaControl
	VolumeControl
	PlaylistControl
	TVControl
	KeyControl
	PowerControl
	ExternalInputControl
	ToastControl
	TextInputControl
	MouseControl
	WebAppLauncher
)

var tagNames = map[Tag]string{
	Launcher:             "Launcher",
	MediaPlayer:          "MediaPlayer",
	MediaControl:         "MediaControl",
	VolumeControl:        "VolumeControl",
	PlaylistControl:      "PlaylistControl",
	TVControl:            "TVControl",
	KeyControl:           "KeyControl",
	PowerControl:         "PowerControl",
	ExternalInputControl: "ExternalInputControl",
	ToastControl:         "ToastControl",
	TextInputControl:     "TextInputControl",
	MouseControl:         "MouseControl",
	WebAppLauncher:       "WebAppLauncher",
}

// String returns the interface name, which is also the capability name prefix.
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", int(t))
}

// ParseTag converts an interface name back to its tag.
func ParseTag(name string) (Tag, bool) {
	for tag, n := range tagNames {
		if n == name {
			return tag, true
		}
	}
	return 0, false
}

// Tags returns every known tag in declaration order.
func Tags() []Tag {
	tags := make([]Tag, 0, len(tagNames))
	for t := Launcher; t <= WebAppLauncher; t++ {
		tags = append(tags, t)
	}
	return tags
}

// AnySuffix is the trailing wildcard segment accepted by Match.
const AnySuffix = ".Any"

// Match reports whether a capability set satisfies one capability name.
// A name ending in ".Any" matches any capability that starts with the
// name's prefix, so "Launcher.App.Any" matches "Launcher.App.Params".
func Match(caps []string, name string) bool {
	if strings.HasSuffix(name, AnySuffix) {
		prefix := strings.TrimSuffix(name, "Any")
		for _, c := range caps {
			if strings.HasPrefix(c, prefix) {
				return true
			}
		}
		return false
	}

	for _, c := range caps {
		if c == name {
			return true
		}
	}
	return false
}

// Diff returns the names present in next but not prev (added) and the
// names present in prev but not next (removed). Order follows the inputs.
func Diff(prev, next []string) (added, removed []string) {
	before := make(map[string]struct{}, len(prev))
	for _, c := range prev {
		before[c] = struct{}{}
	}
	after := make(map[string]struct{}, len(next))
	for _, c := range next {
		if _, dup := after[c]; dup {
			continue
		}
		after[c] = struct{}{}
		if _, ok := before[c]; !ok {
			added = append(added, c)
		}
	}
	for _, c := range prev {
		if _, ok := after[c]; !ok {
			removed = append(removed, c)
		}
	}
	return added, removed
}
