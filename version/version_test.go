package version_test

import (
	"testing"

	"github.com/outofphase/liveseq/version"
)

func TestVersionOrHash(t *testing.T) {
	if version.VersionOrHash == "" {
		t.Fatal("expected a version, a hash or devel")
	}
}

func TestHashIsShort(t *testing.T) {
	if h := version.Hash; h != "" && len(h) != 7 && len(h) != len("0123456-dirty") {
		t.Fatalf("unexpected hash %q", h)
	}
}
