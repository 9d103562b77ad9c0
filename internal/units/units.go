// Package units converts survey-native time and coordinate values into the
// standardized output vocabulary: times in Julian Date, positions in decimal
// degrees.
package units

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Time standards convertible to Julian Date.
const (
	// StandardSnoopy is the Snoopy light-curve tool's offset MJD.
	StandardSnoopy = "snpy"

	// StandardMJD is the Modified Julian Date.
	StandardMJD = "mjd"

	// StandardUT is a packed UT date stamp, YYYYMMDD.frac.
	StandardUT = "ut"

	// StandardJD marks values already in Julian Date.
	StandardJD = "jd"
)

const (
	snoopyOffset = 53000     // Snoopy to MJD
	mjdOffset    = 2400000.5 // MJD to JD
)

// ToJD converts a timestamp from the named standard into Julian Date.
func ToJD(value float64, standard string) (float64, error) {
	switch strings.ToLower(standard) {
	case StandardSnoopy:
		return value + snoopyOffset + mjdOffset, nil
	case StandardMJD:
		return value + mjdOffset, nil
	case StandardJD:
		return value, nil
	case StandardUT:
		return utToJD(value)
	default:
		return 0, fmt.Errorf("units: cannot convert time standard %q", standard)
	}
}

// utToJD converts a packed YYYYMMDD.frac UT stamp to Julian Date.
func utToJD(value float64) (float64, error) {
	str := strconv.FormatFloat(value, 'f', -1, 64)
	if len(str) < 8 {
		return 0, fmt.Errorf("units: %v is not a YYYYMMDD.fff date stamp", value)
	}

	year, err1 := strconv.Atoi(str[:4])
	month, err2 := strconv.Atoi(str[4:6])
	day, err3 := strconv.Atoi(str[6:8])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, fmt.Errorf("units: %v is not a YYYYMMDD.fff date stamp", value)
	}

	fractionalDays := 0.0
	if len(str) > 8 {
		fractionalDays, err1 = strconv.ParseFloat(str[8:], 64)
		if err1 != nil {
			return 0, fmt.Errorf("units: %v is not a YYYYMMDD.fff date stamp", value)
		}
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Days since January 1, year 1 (UTC), rescaled to the JD epoch of
	// January 1, 4713 BC at 12:00.
	ordinal := float64(date.Unix()/86400) + 719163
	return ordinal + 1721424.5 + fractionalDays, nil
}

// HourAngleToDegrees converts a sexagesimal position into decimal degrees.
// decSign carries the declination's sign separately so that "-0" degrees is
// preserved.
func HourAngleToDegrees(raH, raM, raS float64, decSign string, decD, decM, decS float64) (ra, dec float64) {
	ra = (raH + raM/60 + raS/3600) * 15

	sign := 1.0
	if decSign == "-" {
		sign = -1
	}
	dec = sign * (decD + decM/60 + decS/3600)
	return ra, dec
}
