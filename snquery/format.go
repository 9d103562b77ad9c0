package snquery

// Standardized column names shared by every survey parser when formatting is
// requested. Formatted photometry carries times in Julian Date, fully
// qualified band names, and fluxes with their zero points; formatted spectra
// carry observation time and wavelength in Angstroms.
const (
	ColTime       = "time"
	ColBand       = "band"
	ColFlux       = "flux"
	ColFluxErr    = "fluxerr"
	ColZP         = "zp"
	ColZPSys      = "zpsys"
	ColWavelength = "wavelength"
)

// NewPhotometryTable creates an empty table with the standardized
// photometric column order.
func NewPhotometryTable() *Table {
	return NewTable(ColTime, ColBand, ColFlux, ColFluxErr, ColZP, ColZPSys)
}

// NewSpectrumTable creates an empty table with the standardized
// spectroscopic column order.
func NewSpectrumTable() *Table {
	return NewTable(ColTime, ColWavelength, ColFlux)
}
