// Package policy decides whether an offered job is worth accepting.
package policy

import (
	"strings"
	"time"

	"github.com/sybl-ml/sybl-go/internal/protocol"
)

// ComparisonFunc is a caller-supplied predicate that replaces the
// built-in acceptance rule entirely.
type ComparisonFunc func(offer protocol.JobOffer) bool

// Policy holds the acceptance constraints for incoming job offers.
type Policy struct {
	predictionTypes map[string]struct{}
	maxTimeout      time.Duration
	compare         ComparisonFunc
}

// New builds a policy accepting the given prediction types (matched
// case-insensitively) with the given timeout budget in minutes.
func New(predictionTypes []string, timeoutMinutes int) *Policy {
	types := make(map[string]struct{}, len(predictionTypes))
	for _, t := range predictionTypes {
		types[strings.ToLower(t)] = struct{}{}
	}
	return &Policy{
		predictionTypes: types,
		maxTimeout:      time.Duration(timeoutMinutes) * time.Minute,
	}
}

// Default accepts regression and classification jobs within a
// ten-minute window.
func Default() *Policy {
	return New([]string{"regression", "classification"}, 10)
}

// SetComparisonFunc installs a custom predicate. Once set, the built-in
// timeout and type checks are bypassed for complete offers.
func (p *Policy) SetComparisonFunc(fn ComparisonFunc) {
	p.compare = fn
}

// Compare reports whether the offer should be accepted. Incomplete
// offers are always rejected. The call never mutates policy state.
func (p *Policy) Compare(offer protocol.JobOffer) bool {
	if !offer.Complete() {
		return false
	}

	if p.compare != nil {
		return p.compare(offer)
	}

	elapsed := time.Duration(*offer.PredictionCutoffTimestamp-*offer.MessageCreationTimestamp) * time.Second
	if elapsed > p.maxTimeout {
		return false
	}
	_, ok := p.predictionTypes[strings.ToLower(*offer.PredictionType)]
	return ok
}
