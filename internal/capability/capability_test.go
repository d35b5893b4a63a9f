package capability

import (
	"reflect"
	"testing"
)

func TestMatch(t *testing.T) {
	caps := []string{LauncherApp, LauncherAppParams, MediaPlayerDisplayImage}

	tests := []struct {
		name string
		want bool
	}{
		{LauncherApp, true},
		{LauncherAppClose, false},
		{"Launcher.App.Any", true},
		{LauncherAny, true},
		{MediaPlayerAny, true},
		{MediaControlAny, false},
		{"Launcher.Ap", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(caps, tt.name); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestDiff(t *testing.T) {
	added, removed := Diff([]string{"A", "B"}, []string{"B", "C", "C"})
	if !reflect.DeepEqual(added, []string{"C"}) {
		t.Errorf("added = %v, want [C]", added)
	}
	if !reflect.DeepEqual(removed, []string{"A"}) {
		t.Errorf("removed = %v, want [A]", removed)
	}

	added, removed = Diff(nil, nil)
	if added != nil || removed != nil {
		t.Errorf("Diff(nil, nil) = %v, %v, want nil, nil", added, removed)
	}
}

func TestFilter(t *testing.T) {
	f := NewFilter("A", "C")

	tests := []struct {
		name string
		caps []string
		want bool
	}{
		{"missing C", []string{"A", "B"}, false},
		{"has both", []string{"A", "B", "C"}, true},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Satisfied(func(n string) bool { return Match(tt.caps, n) }); got != tt.want {
				t.Errorf("Satisfied() = %v, want %v", got, tt.want)
			}
		})
	}

	if !NewFilter().Satisfied(func(string) bool { return false }) {
		t.Error("empty filter should be vacuously satisfied")
	}
}

func TestTagRoundTrip(t *testing.T) {
	for _, tag := range Tags() {
		got, ok := ParseTag(tag.String())
		if !ok || got != tag {
			t.Errorf("ParseTag(%q) = %v, %v, want %v", tag.String(), got, ok, tag)
		}
	}
	if _, ok := ParseTag("Nope"); ok {
		t.Error("ParseTag(Nope) should fail")
	}
}

func TestPriorityOrdering(t *testing.T) {
	levels := []Priority{NotSupported, VeryLow, Low, Normal, High, VeryHigh}
	for i := 1; i < len(levels); i++ {
		if levels[i] <= levels[i-1] {
			t.Errorf("%v should rank above %v", levels[i], levels[i-1])
		}
	}
	if Priority(42).String() != "Priority(42)" {
		t.Errorf("Priority(42).String() = %q", Priority(42).String())
	}
}
