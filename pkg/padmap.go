package merger

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Fixed-pattern-noise channels of the AGET chip. They carry no physics
// signal and are rejected before pad resolution.
var fpnChannels = [4]uint8{11, 22, 45, 56}

// HardwareAddress identifies one electronics channel by its position in the
// GET hierarchy: CoBo module, AsAd board, AGET chip, chip channel.
type HardwareAddress struct {
	CoboID  uint8
	AsadID  uint8
	AgetID  uint8
	Channel uint8
}

// Uuid packs the address into a single map key.
func (a HardwareAddress) Uuid() uint64 {
	return uint64(a.Channel) +
		uint64(a.AgetID)*100 +
		uint64(a.AsadID)*10_000 +
		uint64(a.CoboID)*1_000_000
}

func (a HardwareAddress) IsFPN() bool {
	for _, ch := range fpnChannels {
		if a.Channel == ch {
			return true
		}
	}
	return false
}

func (a HardwareAddress) String() string {
	return fmt.Sprintf("cobo %d asad %d aget %d channel %d", a.CoboID, a.AsadID, a.AgetID, a.Channel)
}

// PadMapEntry is the physical destination of one electronics channel: the
// pad number plus its location on the pad plane.
type PadMapEntry struct {
	Address HardwareAddress
	PadID   uint32
	Plane   uint16
	Row     uint16
	Column  uint16
}

// PadMap resolves hardware addresses to pads. It is read-only after load and
// safe to share across concurrent run workers.
type PadMap struct {
	entries map[uint64]PadMapEntry
	version string
}

const padMapColumns = 8

// LoadPadMap reads the CSV mapping file. Columns are
// cobo,asad,aget,channel,pad,plane,row,column with a header row and no
// whitespace. Malformed rows and duplicate hardware keys fail the load.
func LoadPadMap(path string) (*PadMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PadMapLoadError{Source: path, Err: err}
	}
	return parsePadMap(string(data), path)
}

func parsePadMap(contents string, source string) (*PadMap, error) {
	pm := &PadMap{
		entries: make(map[uint64]PadMapEntry),
		version: source,
	}

	lines := strings.Split(contents, "\n")
	for i, line := range lines {
		if i == 0 {
			// Skip the header
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < padMapColumns {
			return nil, &PadMapLoadError{Source: source, Line: i + 1,
				Err: fmt.Errorf("expected %d columns, got %d", padMapColumns, len(fields))}
		}

		values := make([]uint64, padMapColumns)
		for j, field := range fields[:padMapColumns] {
			value, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return nil, &PadMapLoadError{Source: source, Line: i + 1, Err: err}
			}
			values[j] = value
		}

		entry := PadMapEntry{
			Address: HardwareAddress{
				CoboID:  uint8(values[0]),
				AsadID:  uint8(values[1]),
				AgetID:  uint8(values[2]),
				Channel: uint8(values[3]),
			},
			PadID:  uint32(values[4]),
			Plane:  uint16(values[5]),
			Row:    uint16(values[6]),
			Column: uint16(values[7]),
		}
		key := entry.Address.Uuid()
		if _, dup := pm.entries[key]; dup {
			return nil, &PadMapLoadError{Source: source, Line: i + 1,
				Err: fmt.Errorf("duplicate hardware address (%s)", entry.Address)}
		}
		pm.entries[key] = entry
	}

	if len(pm.entries) == 0 {
		return nil, &PadMapLoadError{Source: source, Err: fmt.Errorf("map contains no entries")}
	}
	return pm, nil
}

// Resolve looks up the pad for a hardware address. A missing mapping is a
// normal outcome; some channels are grounds or references.
func (pm *PadMap) Resolve(addr HardwareAddress) (PadMapEntry, bool) {
	entry, ok := pm.entries[addr.Uuid()]
	return entry, ok
}

func (pm *PadMap) Len() int {
	return len(pm.entries)
}

// Version describes where the map was loaded from, for the run metadata.
func (pm *PadMap) Version() string {
	return pm.version
}
