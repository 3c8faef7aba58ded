package nvstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coopdoor/door"
	"coopdoor/timectl"
)

func TestOpen_MissingFileUsesDefaults(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "settings.yaml"), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, door.Manual, st.DoorControlMode())
	assert.Equal(t, DefaultTimezone, st.Timezone())
	h, m := st.FixedOpenTime()
	assert.Equal(t, []int{0, 0}, []int{h, m})
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	st, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, st.SetGeoLocation(50.85, 4.35))
	require.NoError(t, st.SetFixedOpenTime("07:30"))
	require.NoError(t, st.SetFixedCloseTime("21:05"))
	require.NoError(t, st.SetDoorControlMode("sun"))
	require.NoError(t, st.SetTimezone("Europe/Paris"))
	require.NoError(t, st.Save())

	again, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, st.Settings(), again.Settings())

	lat, lon := again.GeoLocation()
	assert.Equal(t, 50.85, lat)
	assert.Equal(t, 4.35, lon)
	h, m := again.FixedCloseTime()
	assert.Equal(t, []int{21, 5}, []int{h, m})
	assert.Equal(t, door.Sun, again.DoorControlMode())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestSettersRejectWithoutChange(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "s.yaml"), nil)
	require.NoError(t, err)
	require.NoError(t, st.SetGeoLocation(10, 20))
	before := st.Settings()

	assert.Error(t, st.SetGeoLocation(91, 0))
	assert.Error(t, st.SetGeoLocation(0, -181))
	assert.Error(t, st.SetFixedOpenTime("24:00"))
	assert.Error(t, st.SetFixedOpenTime("7:30"))
	assert.Error(t, st.SetFixedCloseTime("12:60"))
	assert.Error(t, st.SetDoorControlMode("sunrise"))
	assert.ErrorIs(t, st.SetTimezone("Mars/Base"), timectl.ErrUnsupportedTimezone)

	assert.Equal(t, before, st.Settings())
}

func TestSetGeoLocationStoresInputs(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "s.yaml"), nil)
	require.NoError(t, err)
	require.NoError(t, st.SetGeoLocation(-33.9, 18.4))
	lat, lon := st.GeoLocation()
	assert.Equal(t, -33.9, lat)
	assert.Equal(t, 18.4, lon)
}

func TestOpen_InvalidEntriesFallBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := "latitude: 120\nlongitude: 4\nopen_time: \"06:45\"\nclose_time: nonsense\ndoor_control: fixedTime\ntimezone: Nowhere/Land\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	st, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	lat, lon := st.GeoLocation()
	assert.Zero(t, lat)
	assert.Zero(t, lon)
	h, m := st.FixedOpenTime()
	assert.Equal(t, []int{6, 45}, []int{h, m})
	assert.Equal(t, "00:00", st.Settings().CloseTime)
	assert.Equal(t, door.FixedTime, st.DoorControlMode())
	assert.Equal(t, DefaultTimezone, st.Timezone())
}

func TestOpen_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("latitude: [1, 2\n"), 0o644))
	_, err := Open(path, zap.NewNop())
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("23:59")
	require.NoError(t, err)
	assert.Equal(t, []int{23, 59}, []int{h, m})

	for _, bad := range []string{"", "1234", "12-30", "ab:cd", "-1:00", "+1:30", "07:3x", "7:30"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}
