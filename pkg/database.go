package merger

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx"
)

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

type padMapRow struct {
	CoboID    int `db:"CoboID"`
	AsadID    int `db:"AsadID"`
	AgetID    int `db:"AgetID"`
	Channel   int `db:"Channel"`
	PadID     int `db:"PadID"`
	Plane     int `db:"Plane"`
	PadRow    int `db:"PadRow"`
	PadColumn int `db:"PadColumn"`
}

// LoadPadMapFromDB reads the channel mapping valid for a run from the
// experiment database. The table keeps one mapping per run interval, so the
// run number selects the row set.
func LoadPadMapFromDB(db *sqlx.DB, runNumber int) (*PadMap, error) {
	source := fmt.Sprintf("database run %d", runNumber)
	query := "SELECT CoboID, AsadID, AgetID, Channel, PadID, Plane, PadRow, PadColumn FROM ChannelMapping WHERE MinRun <= %d and MaxRun >= %d"
	query = fmt.Sprintf(query, runNumber, runNumber)

	rows, err := db.Queryx(query)
	if err != nil {
		return nil, &PadMapLoadError{Source: source, Err: fmt.Errorf("error querying database: %w", err)}
	}
	defer rows.Close()

	pm := &PadMap{
		entries: make(map[uint64]PadMapEntry),
		version: source,
	}
	for rows.Next() {
		result := padMapRow{}
		if err := rows.StructScan(&result); err != nil {
			return nil, &PadMapLoadError{Source: source, Err: fmt.Errorf("error scanning DB row: %w", err)}
		}
		entry := PadMapEntry{
			Address: HardwareAddress{
				CoboID:  uint8(result.CoboID),
				AsadID:  uint8(result.AsadID),
				AgetID:  uint8(result.AgetID),
				Channel: uint8(result.Channel),
			},
			PadID:  uint32(result.PadID),
			Plane:  uint16(result.Plane),
			Row:    uint16(result.PadRow),
			Column: uint16(result.PadColumn),
		}
		key := entry.Address.Uuid()
		if _, dup := pm.entries[key]; dup {
			return nil, &PadMapLoadError{Source: source,
				Err: fmt.Errorf("duplicate hardware address (%s)", entry.Address)}
		}
		pm.entries[key] = entry
	}

	if len(pm.entries) == 0 {
		return nil, &PadMapLoadError{Source: source, Err: fmt.Errorf("map contains no entries")}
	}
	return pm, nil
}
