package crypto

import (
	"testing"

	"github.com/blang/semver"
	"github.com/stretchr/testify/assert"
)

func TestProviderVersionEncodeMatchesWorkedExample(t *testing.T) {
	v := ProviderVersion{Version: semver.Version{Major: 1, Minor: 0, Patch: 2}, BuildTime: 0xC0DEC0DE}
	assert.Equal(t, uint64(0x00010002C0DEC0DE), v.Encode())
}

func TestStaticFactoryLookupMiss(t *testing.T) {
	f := NewStaticFactory()
	_, ok := f.Lookup([16]byte{})
	assert.False(t, ok)
}
