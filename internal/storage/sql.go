package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	// Indexes are created on Close, after the bulk writes are done.
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_scans_run ON scans (run_id);
CREATE INDEX IF NOT EXISTS idx_curves_scan ON curves (scan_id, channel);
CREATE INDEX IF NOT EXISTS idx_points_curve ON points (curve_id, seq)`

	insertRunSQL = `
INSERT INTO runs (
                  start_time,
                  label,
                  config)
VALUES (CURRENT_TIMESTAMP, ?, ?)`

	selectRunSQL = `
SELECT
    id,
    start_time,
    label,
    config
FROM runs
WHERE
    id = ?`

	selectRunsSQL = `
SELECT
    id,
    start_time,
    label,
    config
FROM runs
ORDER BY start_time, id`

	insertScanSQL = `
INSERT INTO scans (run_id,
                   filename,
                   source,
                   subscan,
                   receiver,
                   backend,
                   samples,
                   mjd_start,
                   length_sec)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectScansSQL = `
SELECT
    id,
    run_id,
    filename,
    source,
    subscan,
    receiver,
    backend,
    samples,
    mjd_start,
    length_sec
FROM scans
WHERE
    run_id = ?
ORDER BY id`

	insertCurveSQL = `
INSERT INTO curves (scan_id,
                    channel,
                    frequency,
                    bandwidth,
                    mask)
VALUES (?, ?, ?, ?, ?)`

	selectCurveSQL = `
SELECT
    id,
    frequency,
    bandwidth,
    mask
FROM curves
WHERE
    scan_id = ? AND channel = ?`

	selectCurvesSQL = `
SELECT
    channel
FROM curves
WHERE
    scan_id = ?
ORDER BY channel`

	selectPointsSQL = `
SELECT
    mjd,
    value
FROM points
WHERE
    curve_id = ?
ORDER BY seq`

	insertPointsSQL = `
INSERT INTO points (curve_id,
                    seq,
                    mjd,
                    value)
VALUES `
)
