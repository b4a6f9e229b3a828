package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruuvigw/wifimgr/internal/wmtypes"
)

func TestDedupAndSortKeepsStrongestRSSI(t *testing.T) {
	in := []wmtypes.AccessPoint{
		{SSID: "home", Channel: 1, RSSI: -80, AuthMode: 3},
		{SSID: "home", Channel: 1, RSSI: -40, AuthMode: 3},
		{SSID: "office", Channel: 6, RSSI: -50, AuthMode: 3},
	}
	out := DedupAndSort(in, 15)
	require.Len(t, out, 2)
	assert.Equal(t, "home", out[0].SSID)
	assert.Equal(t, -40, out[0].RSSI)
}

func TestDedupAndSortTruncates(t *testing.T) {
	in := make([]wmtypes.AccessPoint, 20)
	for i := range in {
		in[i] = wmtypes.AccessPoint{SSID: string(rune('a' + i)), RSSI: -i}
	}
	out := DedupAndSort(in, 15)
	assert.Len(t, out, 15)
}

func TestDedupAndSortIdempotent(t *testing.T) {
	in := []wmtypes.AccessPoint{
		{SSID: "a", RSSI: -10}, {SSID: "b", RSSI: -20}, {SSID: "a", RSSI: -5},
	}
	once := DedupAndSort(in, 15)
	twice := DedupAndSort(once, 15)
	assert.Equal(t, once, twice)
}

func TestDedupAndSortKeepsDistinctAuthModes(t *testing.T) {
	in := []wmtypes.AccessPoint{
		{SSID: "abc", Channel: 1, RSSI: -70, AuthMode: 3},
		{SSID: "abc", Channel: 1, RSSI: -60, AuthMode: 3},
		{SSID: "xyz", Channel: 6, RSSI: -55, AuthMode: 3},
		{SSID: "abc", Channel: 1, RSSI: -50, AuthMode: 4},
	}
	out := DedupAndSort(in, 15)
	require.Len(t, out, 3)
	assert.Equal(t, wmtypes.AccessPoint{SSID: "abc", Channel: 1, RSSI: -50, AuthMode: 4}, out[0])
	assert.Equal(t, wmtypes.AccessPoint{SSID: "xyz", Channel: 6, RSSI: -55, AuthMode: 3}, out[1])
	assert.Equal(t, wmtypes.AccessPoint{SSID: "abc", Channel: 1, RSSI: -60, AuthMode: 3}, out[2])
}

func TestStatusJSONEscapesControlCharacters(t *testing.T) {
	var n NetInfo
	ssid := "we\"ird\\net\b\f\n\r\t\x01"
	n.Set(wmtypes.NetworkInfo{SSID: &ssid, IP: "10.0.0.2", Netmask: "255.255.255.0", Gateway: "10.0.0.1", UpdateReason: wmtypes.ReasonOk})

	body, err := n.RenderStatusJSON(false)
	require.NoError(t, err)

	var doc struct {
		SSID *string `json:"ssid"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))
	require.NotNil(t, doc.SSID)
	assert.Equal(t, ssid, *doc.SSID, "escaping then parsing must round-trip every byte")
}

func TestStaIPResetYieldsNil(t *testing.T) {
	var s StaIP
	s.Set([]byte{10, 10, 0, 5})
	require.NotNil(t, s.Get())
	s.Reset()
	assert.Nil(t, s.Get())
}

func TestNetInfoRenderStatusJSON(t *testing.T) {
	var n NetInfo
	ssid := "home"
	n.Set(wmtypes.NetworkInfo{SSID: &ssid, IP: "10.10.0.5", Netmask: "255.255.255.0", Gateway: "10.10.0.1", UpdateReason: wmtypes.ReasonOk})

	body, err := n.RenderStatusJSON(true)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, "home", doc["ssid"])
	assert.Equal(t, float64(1), doc["lan"])
}

func TestAPListRenderJSONEmpty(t *testing.T) {
	var a APList
	body, err := a.RenderJSON()
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(body))
}
