package snquery

import (
	"bufio"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteJSONL writes the table as JSON Lines: a header object holding the
// metadata, then one object per row keyed by column name. The format is a
// plain interchange surface for downstream tooling; it is not read back by
// this package.
func WriteJSONL(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	enc := jsonCodec.NewEncoder(bw)

	header := map[string]any{
		"meta":    t.Meta,
		"columns": t.ColumnNames(),
	}
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("snquery: encode header: %w", err)
	}

	names := t.ColumnNames()
	for i := 0; i < t.NumRows(); i++ {
		values := t.Row(i)
		row := make(map[string]any, len(names))
		for j, name := range names {
			row[name] = values[j]
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("snquery: encode row %d: %w", i, err)
		}
	}
	return bw.Flush()
}
