package snquery

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// lightCurveRow is the fixed Parquet schema for standardized photometry.
type lightCurveRow struct {
	Time    float64 `parquet:"time"`
	Band    string  `parquet:"band"`
	Flux    float64 `parquet:"flux"`
	FluxErr float64 `parquet:"fluxerr"`
	ZP      float64 `parquet:"zp"`
	ZPSys   string  `parquet:"zpsys"`
}

// WriteParquet writes a standardized photometric table as a Parquet file for
// downstream fitting pipelines. The table must carry the standardized
// columns; raw survey-native tables have no fixed schema and are rejected.
func WriteParquet(w io.Writer, t *Table) error {
	for _, name := range []string{ColTime, ColBand, ColFlux, ColFluxErr, ColZP, ColZPSys} {
		if !t.HasColumn(name) {
			return fmt.Errorf("snquery: parquet export requires standardized column %q", name)
		}
	}

	times, err := t.Floats(ColTime)
	if err != nil {
		return err
	}
	fluxes, err := t.Floats(ColFlux)
	if err != nil {
		return err
	}
	fluxErrs, err := t.Floats(ColFluxErr)
	if err != nil {
		return err
	}
	zps, err := t.Floats(ColZP)
	if err != nil {
		return err
	}
	bands, err := t.Strings(ColBand)
	if err != nil {
		return err
	}
	zpsys, err := t.Strings(ColZPSys)
	if err != nil {
		return err
	}

	rows := make([]lightCurveRow, t.NumRows())
	for i := range rows {
		rows[i] = lightCurveRow{
			Time:    times[i],
			Band:    bands[i],
			Flux:    fluxes[i],
			FluxErr: fluxErrs[i],
			ZP:      zps[i],
			ZPSys:   zpsys[i],
		}
	}

	pw := parquet.NewGenericWriter[lightCurveRow](w)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("snquery: write parquet: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("snquery: close parquet: %w", err)
	}
	return nil
}
