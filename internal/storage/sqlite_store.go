package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/radioscan/dishpipe/internal/scan"
)

// pointsBatchSize bounds the number of rows per INSERT so the statement
// stays under sqlite's default host-parameter limit.
const pointsBatchSize = 200

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a new database connection and initializes the schema
// using the Sqlite database
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateRun(ctx context.Context, label string, config any) (runID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch c := config.(type) {
		case string:
			configData.Valid = true
			configData.String = c

		case []byte:
			configData.Valid = true
			configData.String = string(c)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, label, configData)
	if err != nil {
		err = fmt.Errorf("inserting run: %w", err)
		return
	}

	runID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting run ID: %w", err)
	}
	return
}

func (s *SqliteStore) Run(ctx context.Context, id int64) (run *Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var r Run
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&r.ID, &r.StartTime, &r.Label, &config); err != nil {
		err = fmt.Errorf("scanning run: %w", err)
		return
	}
	if config.Valid {
		r.Config = &config.String
	}

	return &r, nil
}

func (s *SqliteStore) Runs(ctx context.Context) (runs []*Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		err = fmt.Errorf("querying runs: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r Run
		var config sql.NullString
		if err = rows.Scan(&r.ID, &r.StartTime, &r.Label, &config); err != nil {
			err = fmt.Errorf("scanning run: %w", err)
			return
		}
		if config.Valid {
			r.Config = &config.String
		}
		runs = append(runs, &r)
	}
	return
}

func (s *SqliteStore) StoreScan(ctx context.Context, runID int64, sc *scan.Scan) (scanID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	var mjdStart float64
	if len(sc.Times) > 0 {
		mjdStart = sc.Times[0]
	}

	result, err := tx.ExecContext(ctx, insertScanSQL,
		runID,
		sc.Filename,
		sc.Source,
		sc.SubScanID,
		sc.Receiver,
		sc.Backend,
		len(sc.Times),
		mjdStart,
		sc.Length(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting scan: %w", err)
	}
	if scanID, err = result.LastInsertId(); err != nil {
		return 0, fmt.Errorf("getting scan ID: %w", err)
	}

	for _, ch := range sc.Channels {
		if len(ch.LightCurve) == 0 {
			continue
		}

		result, err = tx.ExecContext(ctx, insertCurveSQL,
			scanID, ch.Name, ch.Frequency, ch.Bandwidth, maskToBlob(ch.Mask))
		if err != nil {
			return 0, fmt.Errorf("inserting curve %s: %w", ch.Name, err)
		}
		curveID, err := result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("getting curve ID: %w", err)
		}

		if err = insertPoints(ctx, tx, curveID, sc.Times, ch.LightCurve); err != nil {
			return 0, fmt.Errorf("inserting points of %s: %w", ch.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return scanID, nil
}

func insertPoints(ctx context.Context, tx *sql.Tx, curveID int64, times, values []float64) error {
	for start := 0; start < len(values); start += pointsBatchSize {
		end := start + pointsBatchSize
		if end > len(values) {
			end = len(values)
		}

		var sb strings.Builder
		sb.WriteString(insertPointsSQL)

		args := make([]any, 0, (end-start)*4)
		for i := start; i < end; i++ {
			var mjd float64
			if i < len(times) {
				mjd = times[i]
			}
			args = append(args, curveID, i, mjd, values[i])

			if i > start {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?)")
		}

		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("batch inserting points: %w", err)
		}
	}
	return nil
}

func (s *SqliteStore) Scans(ctx context.Context, runID int64) (scans []*ScanRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectScansSQL, runID)
	if err != nil {
		err = fmt.Errorf("querying scans: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var rec ScanRecord
		var receiver, backend sql.NullString
		if err = rows.Scan(&rec.ID, &rec.RunID, &rec.Filename, &rec.Source, &rec.SubScanID,
			&receiver, &backend, &rec.Samples, &rec.MJDStart, &rec.LengthSec); err != nil {
			err = fmt.Errorf("scanning scan record: %w", err)
			return
		}
		rec.Receiver = receiver.String
		rec.Backend = backend.String
		scans = append(scans, &rec)
	}
	return
}

func (s *SqliteStore) Curves(ctx context.Context, scanID int64) (channels []string, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectCurvesSQL, scanID)
	if err != nil {
		err = fmt.Errorf("querying curves: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var channel string
		if err = rows.Scan(&channel); err != nil {
			err = fmt.Errorf("scanning channel name: %w", err)
			return
		}
		channels = append(channels, channel)
	}
	return
}

func (s *SqliteStore) LightCurve(ctx context.Context, scanID int64, channel string) (curve *CurveRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rec := CurveRecord{ScanID: scanID, Channel: channel}
	var curveID int64
	var mask []byte
	err = db.QueryRowContext(ctx, selectCurveSQL, scanID, channel).
		Scan(&curveID, &rec.Frequency, &rec.Bandwidth, &mask)
	if err != nil {
		err = fmt.Errorf("scanning curve: %w", err)
		return
	}
	rec.Mask = blobToMask(mask)

	rows, err := db.QueryContext(ctx, selectPointsSQL, curveID)
	if err != nil {
		err = fmt.Errorf("querying points: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var mjd, value float64
		if err = rows.Scan(&mjd, &value); err != nil {
			err = fmt.Errorf("scanning point: %w", err)
			return
		}
		rec.Times = append(rec.Times, mjd)
		rec.Values = append(rec.Values, value)
	}
	return &rec, nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
