package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHardwareAddressUuid(t *testing.T) {
	addr := HardwareAddress{CoboID: 3, AsadID: 2, AgetID: 1, Channel: 42}
	assert.Equal(t, uint64(3_020_142), addr.Uuid())
}

func TestFPNChannels(t *testing.T) {
	for _, ch := range []uint8{11, 22, 45, 56} {
		assert.True(t, HardwareAddress{Channel: ch}.IsFPN(), "channel %d", ch)
	}
	for _, ch := range []uint8{0, 10, 12, 67} {
		assert.False(t, HardwareAddress{Channel: ch}.IsFPN(), "channel %d", ch)
	}
}

func TestLoadPadMap(t *testing.T) {
	path := writeTestPadMap(t, t.TempDir())
	pm, err := LoadPadMap(path)
	require.NoError(t, err)
	assert.Equal(t, 5, pm.Len())
	assert.Equal(t, path, pm.Version())

	entry, ok := pm.Resolve(HardwareAddress{CoboID: 1, AsadID: 1, AgetID: 2, Channel: 33})
	require.True(t, ok)
	assert.Equal(t, uint32(400), entry.PadID)
	assert.Equal(t, uint16(1), entry.Plane)
	assert.Equal(t, uint16(6), entry.Row)
	assert.Equal(t, uint16(2), entry.Column)

	_, ok = pm.Resolve(HardwareAddress{CoboID: 9, AsadID: 9, AgetID: 3, Channel: 1})
	assert.False(t, ok)
}

func TestLoadPadMapMissingFile(t *testing.T) {
	_, err := LoadPadMap("/nonexistent/padmap.csv")
	var loadErr *PadMapLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestParsePadMapBadRow(t *testing.T) {
	contents := "cobo,asad,aget,channel,pad,plane,row,column\n0,0,0,5,100\n"
	_, err := parsePadMap(contents, "test")
	var loadErr *PadMapLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, 2, loadErr.Line)
}

func TestParsePadMapBadValue(t *testing.T) {
	contents := "cobo,asad,aget,channel,pad,plane,row,column\n0,0,0,x,100,0,3,7\n"
	_, err := parsePadMap(contents, "test")
	var loadErr *PadMapLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestParsePadMapDuplicate(t *testing.T) {
	contents := "cobo,asad,aget,channel,pad,plane,row,column\n" +
		"0,0,0,5,100,0,3,7\n" +
		"0,0,0,5,101,0,3,8\n"
	_, err := parsePadMap(contents, "test")
	var loadErr *PadMapLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, 3, loadErr.Line)
}

func TestParsePadMapEmpty(t *testing.T) {
	_, err := parsePadMap("cobo,asad,aget,channel,pad,plane,row,column\n", "test")
	var loadErr *PadMapLoadError
	require.ErrorAs(t, err, &loadErr)
}
