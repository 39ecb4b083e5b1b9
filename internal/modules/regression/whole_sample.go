package regression

import (
	"errors"

	"github.com/aristath/factorlab/internal/domain"
)

// FitWholeSample runs one regression over every aligned observation of the design.
func FitWholeSample(d *Design) (domain.WholeSampleLoadings, error) {
	fit, err := fitOLS(d.X, d.Y, HACMaxLags)
	if err != nil {
		return domain.WholeSampleLoadings{}, wrapFitError(d.Instrument, "", err)
	}

	return domain.WholeSampleLoadings{
		Instrument:   d.Instrument,
		Params:       keyed(d.Names, fit.params),
		Order:        append([]string(nil), d.Names...),
		MinDate:      d.Dates[0],
		MaxDate:      d.Dates[len(d.Dates)-1],
		Observations: d.Rows(),
		Inference:    inference(d.Names, fit),
	}, nil
}

func keyed(names []string, values []float64) map[string]float64 {
	out := make(map[string]float64, len(names))
	for i, name := range names {
		out[name] = values[i]
	}
	return out
}

func inference(names []string, fit olsFit) domain.Inference {
	inf := domain.Inference{
		StdErrors: make(map[string]float64, len(names)),
		ZStats:    make(map[string]float64, len(names)),
		PValues:   make(map[string]float64, len(names)),
		CILower:   make(map[string]float64, len(names)),
		CIUpper:   make(map[string]float64, len(names)),
		RSquared:  fit.rSquared,
		MaxLags:   HACMaxLags,
	}
	for i, name := range names {
		b, se := fit.params[i], fit.stdErrors[i]
		z := zStat(b, se)
		inf.StdErrors[name] = se
		inf.ZStats[name] = z
		inf.PValues[name] = pValue(z)
		inf.CILower[name] = b - ci95*se
		inf.CIUpper[name] = b + ci95*se
	}
	return inf
}

// wrapFitError converts kernel failures into domain errors.
func wrapFitError(instrument, window string, err error) error {
	var sing errSingular
	if errors.As(err, &sing) {
		if window != "" {
			return domain.NewError(domain.KindSingularDesign, instrument,
				"window ending %s: %s", window, sing.Error())
		}
		return domain.NewError(domain.KindSingularDesign, instrument, "%s", sing.Error())
	}
	return &domain.Error{Kind: domain.KindInternal, Instrument: instrument, Msg: "regression failed", Err: err}
}
