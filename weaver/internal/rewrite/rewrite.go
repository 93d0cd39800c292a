package rewrite

import (
	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/il"
)

// Config carries what Apply needs besides the body.
type Config struct {
	// Canon switches encodings around every edit. MacroCanonicalizer is
	// used when nil.
	Canon Canonicalizer
	// Release is the instance method called on a local in its finally
	// handler.
	Release *il.MethodRef
	// Warn receives one message per range that could not be protected.
	Warn func(string)
}

func (c Config) canon() Canonicalizer {
	if c.Canon == nil {
		return MacroCanonicalizer{}
	}
	return c.Canon
}

// Normalize brings body into the shape the analysis runs on: long forms
// while returns are unified, short forms afterwards.
func Normalize(body *il.MethodBody, canon Canonicalizer) error {
	if canon == nil {
		canon = MacroCanonicalizer{}
	}
	canon.LongForm(body)
	err := UnifyReturns(body)
	canon.ShortForm(body)
	return err
}

// Apply protects every range of body and returns the ranges that were
// turned into regions, in the order they were built. Ranges must have been
// resolved against body's current instructions.
func Apply(body *il.MethodBody, ranges []Range, cfg Config) ([]Range, error) {
	if cfg.Release == nil {
		return nil, errors.InvalidInput(errors.PhaseRewrite, "no release method configured")
	}
	canon := cfg.canon()

	canon.LongForm(body)
	ranges, err := ResolveConflicts(body, ranges, cfg.Warn)
	canon.ShortForm(body)
	if err != nil {
		return nil, err
	}
	sortRanges(body, ranges)

	for _, r := range ranges {
		canon.LongForm(body)
		err := BuildRegion(body, r, cfg.Release)
		canon.ShortForm(body)
		if err != nil {
			return nil, err
		}
	}

	if err := SortHandlers(body); err != nil {
		return nil, err
	}

	canon.LongForm(body)
	err = FixLeaves(body)
	canon.ShortForm(body)
	if err != nil {
		return nil, err
	}
	return ranges, nil
}
