// Package releases enumerates every data release known to snquery.
//
// The core packages never import the survey packages, so lookups by survey
// and release name live here.
package releases

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sndata/snquery/snquery"
	"github.com/sndata/snquery/snquery/csp"
	"github.com/sndata/snquery/snquery/des"
	"github.com/sndata/snquery/snquery/jla"
	"github.com/sndata/snquery/snquery/sdss"
)

// Factory constructs a data release.
type Factory func(opts ...snquery.Option) (snquery.DataRelease, error)

// ErrUnknownRelease is returned by Lookup for a survey or release name no
// factory is registered under.
var ErrUnknownRelease = errors.New("unknown data release")

func photometric(f func(opts ...snquery.Option) (*snquery.PhotometricRelease, error)) Factory {
	return func(opts ...snquery.Option) (snquery.DataRelease, error) { return f(opts...) }
}

func spectroscopic(f func(opts ...snquery.Option) (*snquery.SpectroscopicRelease, error)) Factory {
	return func(opts ...snquery.Option) (snquery.DataRelease, error) { return f(opts...) }
}

type entry struct {
	survey  string
	release string
	factory Factory
}

var registry = []entry{
	{"csp", "dr1", spectroscopic(csp.NewDR1)},
	{"csp", "dr3", photometric(csp.NewDR3)},
	{"des", "sn3yr", photometric(des.NewSN3YR)},
	{"jla", "betoule14", photometric(jla.NewBetoule14)},
	{"sdss", "sako18", photometric(sdss.NewSako18)},
}

// All constructs every known data release.
func All(opts ...snquery.Option) ([]snquery.DataRelease, error) {
	out := make([]snquery.DataRelease, 0, len(registry))
	for _, e := range registry {
		r, err := e.factory(opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Lookup constructs the release registered under the given survey
// abbreviation and release name. Matching is case insensitive.
func Lookup(survey, release string, opts ...snquery.Option) (snquery.DataRelease, error) {
	survey = strings.ToLower(survey)
	release = strings.ToLower(release)
	for _, e := range registry {
		if e.survey == survey && e.release == release {
			return e.factory(opts...)
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnknownRelease, survey, release)
}

// Names lists the registered survey and release name pairs.
func Names() [][2]string {
	out := make([][2]string, len(registry))
	for i, e := range registry {
		out[i] = [2]string{e.survey, e.release}
	}
	return out
}

// ZeroPoint reports the zero point a band name resolves to. Band names are
// case sensitive and carry their survey and release as prefixes, so the
// owning release is derived from the name itself.
func ZeroPoint(bandName string) (float64, error) {
	parts := strings.SplitN(bandName, "_", 3)
	if len(parts) < 3 {
		return 0, fmt.Errorf("%w: malformed band name %q", ErrUnknownRelease, bandName)
	}
	r, err := Lookup(parts[0], parts[1])
	if err != nil {
		return 0, err
	}
	p, ok := r.(*snquery.PhotometricRelease)
	if !ok {
		return 0, fmt.Errorf("%w: %s %s", snquery.ErrObservedDataType, parts[0], parts[1])
	}
	return p.ZeroPointForBand(bandName)
}

// DeleteAllData deletes the locally cached data of every known release.
func DeleteAllData(opts ...snquery.Option) error {
	all, err := All(opts...)
	if err != nil {
		return err
	}
	var errs []error
	for _, r := range all {
		errs = append(errs, r.DeleteModuleData())
	}
	return errors.Join(errs...)
}
