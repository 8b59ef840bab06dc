package firmware

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMAC(t *testing.T) {
	want := MAC{0x24, 0x6f, 0x28, 0xab, 0xcd, 0xef}

	tests := []struct {
		name  string
		input string
	}{
		{"colon", "24:6f:28:ab:cd:ef"},
		{"colon upper", "24:6F:28:AB:CD:EF"},
		{"dash", "24-6f-28-ab-cd-ef"},
		{"bare", "246f28abcdef"},
		{"initialiser", "{0x24,0x6F,0x28,0xAB,0xCD,0xEF}"},
		{"initialiser spaced", "{ 0x24, 0x6f, 0x28, 0xab, 0xcd, 0xef }"},
		{"padded", "  24:6f:28:ab:cd:ef\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMAC(tt.input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseMACRejects(t *testing.T) {
	for _, input := range []string{
		"",
		"24:6f:28:ab:cd",
		"24:6f:28:ab:cd:ef:01",
		"246f28abcd",
		"zz:6f:28:ab:cd:ef",
		"2:46f:28:ab:cd:ef",
		"{0x24,0x6F,0x28,0xAB,0xCD}",
		"{0x24,0x6F,0x28,0xAB,0xCD,0x1FF}",
		"{0x24,0x6F,0x28,0xAB,0xCD,0xEF",
	} {
		_, err := ParseMAC(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestMACFormatting(t *testing.T) {
	mac := MustParseMAC("24:6f:28:ab:cd:ef")
	assert.Equal(t, "24:6f:28:ab:cd:ef", mac.String())
	assert.Equal(t, "{0x24,0x6F,0x28,0xAB,0xCD,0xEF}", mac.CInitializer())
	assert.Equal(t, "{0x00,0x00,0x00,0x00,0x00,0x00}", MAC{}.CInitializer())

	roundTrip, err := ParseMAC(mac.CInitializer())
	require.NoError(t, err)
	assert.Equal(t, mac, roundTrip)
}

func TestMACClassification(t *testing.T) {
	assert.True(t, MAC{}.IsZero())
	assert.False(t, MustParseMAC("24:6f:28:ab:cd:ef").IsZero())

	broadcast := MustParseMAC("ff:ff:ff:ff:ff:ff")
	assert.True(t, broadcast.IsBroadcast())
	assert.True(t, broadcast.IsMulticast())

	assert.True(t, MustParseMAC("01:00:5e:00:00:01").IsMulticast())
	assert.False(t, MustParseMAC("24:6f:28:ab:cd:ef").IsMulticast())
}

func TestMACJSON(t *testing.T) {
	peers := Peers{Transmitter: MustParseMAC("24:6f:28:ab:cd:ef")}
	data, err := json.Marshal(peers)
	require.NoError(t, err)
	assert.JSONEq(t, `{"central":"00:00:00:00:00:00","transmitter":"24:6f:28:ab:cd:ef"}`, string(data))

	var decoded Peers
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, peers, decoded)
}

func TestPeersCheck(t *testing.T) {
	tx := MustParseMAC("24:6f:28:ab:cd:ef")

	tests := []struct {
		name  string
		peers Peers
		codes map[string]int
	}{
		{"template", Peers{}, map[string]int{CodeZeroMAC: 1}},
		{"transmitter only", Peers{Transmitter: tx}, map[string]int{}},
		{"both", Peers{Central: MustParseMAC("24:6f:28:00:00:01"), Transmitter: tx}, map[string]int{}},
		{"broadcast transmitter", Peers{Transmitter: MustParseMAC("ff:ff:ff:ff:ff:ff")}, map[string]int{CodeMulticastMAC: 1}},
		{"same address", Peers{Central: tx, Transmitter: tx}, map[string]int{CodeDuplicateMAC: 1}},
		{"multicast central", Peers{Central: MustParseMAC("01:00:5e:00:00:01"), Transmitter: tx}, map[string]int{CodeMulticastMAC: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Report
			tt.peers.check(&r)
			assert.Equal(t, tt.codes, r.Codes())
		})
	}
}
