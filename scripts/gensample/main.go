// Package main generates sample datasets for trying leapview on data that
// does not fit a single window or chunk.
//
// Usage:
//
//	go run ./scripts/gensample -rows=250000 -out=testdata/sensors
//
// This writes sensors.csv (timestamped readings), sensors-2.csv (the
// following day, with an extra column) and sensors.db (the same readings
// in a SQLite table named readings).
package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var (
	rowsFlag = flag.Int("rows", 100_000, "rows per file")
	outFlag  = flag.String("out", "", "output path prefix (required)")
	seedFlag = flag.Uint64("seed", 1, "random seed")
	noDBFlag = flag.Bool("no-db", false, "skip the SQLite database")
)

var sensors = []string{"north", "south", "east", "west"}

// reading is one generated row.
type reading struct {
	ts     time.Time
	sensor string
	value  float64
	ok     bool
}

func main() {
	flag.Parse()

	if *outFlag == "" {
		log.Fatal("--out flag is required")
	}
	if *rowsFlag <= 0 {
		log.Fatal("--rows must be positive")
	}
	if err := os.MkdirAll(filepath.Dir(*outFlag), 0o755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	rng := rand.New(rand.NewPCG(*seedFlag, *seedFlag))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	day1 := generate(rng, start, *rowsFlag)
	day2 := generate(rng, start.Add(24*time.Hour), *rowsFlag)

	if err := writeCSV(*outFlag+".csv", day1, false); err != nil {
		log.Fatalf("failed to write csv: %v", err)
	}
	if err := writeCSV(*outFlag+"-2.csv", day2, true); err != nil {
		log.Fatalf("failed to write csv: %v", err)
	}
	if !*noDBFlag {
		if err := writeDB(*outFlag+".db", day1); err != nil {
			log.Fatalf("failed to write database: %v", err)
		}
	}
	log.Printf("wrote %d rows per file to %s*", *rowsFlag, *outFlag)
}

// generate returns n readings spread evenly over one day. About one value
// in fifty is missing.
func generate(rng *rand.Rand, start time.Time, n int) []reading {
	step := 24 * time.Hour / time.Duration(n)
	out := make([]reading, n)
	for i := range out {
		out[i] = reading{
			ts:     start.Add(time.Duration(i) * step),
			sensor: sensors[rng.IntN(len(sensors))],
			value:  20 + rng.NormFloat64()*5,
			ok:     rng.IntN(50) != 0,
		}
	}
	return out
}

func writeCSV(path string, rows []reading, withQuality bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	header := "ts,sensor,value"
	if withQuality {
		header += ",quality"
	}
	_, _ = fmt.Fprintln(w, header)
	for i, r := range rows {
		value := "N/A"
		if r.ok {
			value = fmt.Sprintf("%.3f", r.value)
		}
		_, _ = fmt.Fprintf(w, "%s,%s,%s", r.ts.Format(time.RFC3339Nano), r.sensor, value)
		if withQuality {
			_, _ = fmt.Fprintf(w, ",%d", i%3)
		}
		_, _ = fmt.Fprintln(w)
	}
	return w.Flush()
}

func writeDB(path string, rows []reading) error {
	_ = os.Remove(path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE readings (
		ts TIMESTAMP NOT NULL,
		sensor TEXT NOT NULL,
		value REAL
	)`); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO readings (ts, sensor, value) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		var value sql.NullFloat64
		if r.ok {
			value = sql.NullFloat64{Float64: r.value, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.ts.Format(time.RFC3339Nano), r.sensor, value); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
