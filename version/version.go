// Package version reports which build of liveseq is running.
package version

import "runtime/debug"

// Version is stamped by release builds:
//
//	go build -ldflags "-X github.com/outofphase/liveseq/version.Version=v1.2.0" ./cmd/liveseq-play
var Version string

// Hash is the short vcs revision the binary was built from, with a "-dirty"
// suffix for a modified tree, or empty outside a vcs checkout.
var Hash = vcsHash()

// VersionOrHash is what -v prints.
var VersionOrHash = func() string {
	switch {
	case Version != "":
		return Version
	case Hash != "":
		return Hash
	}
	return "devel"
}()

func vcsHash() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(revision) < 7 {
		return ""
	}
	if dirty {
		return revision[:7] + "-dirty"
	}
	return revision[:7]
}
