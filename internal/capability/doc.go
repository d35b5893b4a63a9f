// Package capability names the units of functionality a device service can
// offer and ranks competing implementations.
//
// Capability names are dotted strings such as "Launcher.App.Params". A name
// ending in ".Any" is a wildcard: "Launcher.App.Any" matches every
// capability that starts with "Launcher.App.".
//
// Each capability interface has a Tag. Services register one implementation
// per tag with a Priority, and a device resolves a tag to the implementation
// with the strictly highest priority.
package capability
