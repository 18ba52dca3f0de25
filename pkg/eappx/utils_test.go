package eappx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignToSector(t *testing.T) {
	cases := []int{1, 511, 512, 513, 1024, 65536}
	for _, n := range cases {
		got := alignToSector(n)
		assert.Zero(t, got%SectorSize, "align_to_sector(%d) must be a multiple of %d", n, SectorSize)
		assert.GreaterOrEqual(t, got, n)
		assert.Less(t, got-n, SectorSize)
	}
}

func TestStrToUTF16Bytes(t *testing.T) {
	got := strToUTF16Bytes("Hello")
	want := []byte{0x48, 0, 0x65, 0, 0x6c, 0, 0x6c, 0, 0x6f, 0}
	assert.Equal(t, want, got)
}

func TestUTF16RoundTrip(t *testing.T) {
	for _, s := range []string{"Hello", "", "MyCoolCalculator_kp0adwb0dpv7r"} {
		b := strToUTF16Bytes(s)
		back, err := utf16BytesToString(b)
		require.NoError(t, err)
		assert.Equal(t, s, back)
	}
}

func TestGeneratePublisherID(t *testing.T) {
	dn := "CN=Microsoft Corporation, O=Microsoft Corporation, L=Redmond, S=Washington, C=US"
	assert.Equal(t, "8wekyb3d8bbwe", generatePublisherID(dn))
}

func TestGeneratePFN(t *testing.T) {
	got := generatePFN("MyCoolCalculator", "CN=SomeDev")
	assert.Equal(t, "MyCoolCalculator_kp0adwb0dpv7r", got)
}

func TestHumanFilesize(t *testing.T) {
	cases := map[uint64]string{
		0:                 "0 B",
		1023:              "1023 B",
		1024:              "1 KB",
		1024 * 1024:       "1 MB",
		1024 * 1024 * 1024: "1 GB",
	}
	for size, want := range cases {
		assert.Equal(t, want, humanFilesize(size))
	}
}
