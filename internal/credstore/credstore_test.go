package credstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruuvigw/wifimgr/internal/wmtypes"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.db")
	s, err := Open(path, "ns")
	require.NoError(t, err)
	defer s.Close()

	triple := Triple{
		Settings: wmtypes.WifiSettings{APSSID: "gw", APChannel: 6},
		Creds:    wmtypes.StaCreds{SSID: "upstream", Password: "hunter22"},
	}
	require.NoError(t, s.Save(triple))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, triple, got)
}

func TestLoadEmptyStoreReturnsZeroValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.db")
	s, err := Open(path, "ns")
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Triple{}, got)
}

func TestSaveRejectsOversizedSSID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.db")
	s, err := Open(path, "ns")
	require.NoError(t, err)
	defer s.Close()

	bad := Triple{Creds: wmtypes.StaCreds{SSID: string(make([]byte, 64))}}
	assert.Error(t, s.Save(bad))
}

func TestClearRemovesPersistedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.db")
	s, err := Open(path, "ns")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(Triple{Creds: wmtypes.StaCreds{SSID: "x"}}))
	require.NoError(t, s.Clear())

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Triple{}, got)
}
