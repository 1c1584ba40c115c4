// Package export writes schedules as CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/bess-scheduler/core/model"
)

// Header lists the CSV columns in output order.
var Header = []string{
	"timestamp", "charge", "discharge", "soc", "grid", "grid_import", "grid_export",
	"solar_used", "solar_gen", "load", "price",
}

// Formats accepted by Write.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Write dispatches on format.
func Write(w io.Writer, format string, res model.ScheduleResult) error {
	switch format {
	case "", FormatCSV:
		return WriteCSV(w, res.Entries)
	case FormatJSON:
		return WriteJSON(w, res)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteJSON writes the full result, indented.
func WriteJSON(w io.Writer, res model.ScheduleResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteCSV writes one row per schedule step.
func WriteCSV(w io.Writer, entries []model.ScheduleEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.Timestamp.Format(time.RFC3339),
			num(e.Charge),
			num(e.Discharge),
			num(e.SOC),
			num(e.Grid),
			num(e.GridImport),
			num(e.GridExport),
			num(e.SolarUsed),
			num(e.SolarGen),
			num(e.Load),
			num(e.Price),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
