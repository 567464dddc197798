/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package claim projects a date of birth onto the minimal set of boolean age claims a relying party asked for.
package claim

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of a date of birth.
const DateLayout = "2006-01-02"

const agePrefix = "age_over_"

// Name identifies a derived boolean claim.
type Name string

// Claims recognized by default.
const (
	AgeOver13 Name = "age_over_13"
	AgeOver16 Name = "age_over_16"
	AgeOver18 Name = "age_over_18"
	AgeOver21 Name = "age_over_21"
)

// DefaultThresholds are the age thresholds of the default projector.
var DefaultThresholds = []int{13, 16, 18, 21} //nolint:gochecknoglobals

// AgeOver returns the claim name for an age threshold.
func AgeOver(years int) Name {
	return Name(agePrefix + strconv.Itoa(years))
}

// Projector maps a date of birth to the requested claims it recognizes.
type Projector struct {
	thresholds map[Name]int
}

// Option configures a Projector.
type Option func(p *Projector)

// WithThresholds adds age thresholds next to the defaults.
func WithThresholds(years ...int) Option {
	return func(p *Projector) {
		for _, y := range years {
			if y > 0 {
				p.thresholds[AgeOver(y)] = y
			}
		}
	}
}

// NewProjector returns a Projector recognizing the default age claims plus any configured thresholds.
func NewProjector(opts ...Option) *Projector {
	p := &Projector{thresholds: make(map[Name]int, len(DefaultThresholds))}

	for _, y := range DefaultThresholds {
		p.thresholds[AgeOver(y)] = y
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Supported returns the recognized claim names ordered by threshold.
func (p *Projector) Supported() []Name {
	names := make([]Name, 0, len(p.thresholds))
	for n := range p.thresholds {
		names = append(names, n)
	}

	sort.Slice(names, func(i, j int) bool { return p.thresholds[names[i]] < p.thresholds[names[j]] })

	return names
}

// ParseNames keeps the recognized names of requested in request order.
// Unrecognized names are dropped and duplicates collapse.
func (p *Projector) ParseNames(requested []string) []Name {
	names := make([]Name, 0, len(requested))
	seen := make(map[Name]struct{}, len(requested))

	for _, r := range requested {
		n := Name(r)

		if _, ok := p.thresholds[n]; !ok {
			continue
		}

		if _, ok := seen[n]; ok {
			continue
		}

		seen[n] = struct{}{}
		names = append(names, n)
	}

	return names
}

// Project evaluates each recognized requested claim for the given date of birth at now.
// The result never holds a claim that was not requested.
func (p *Projector) Project(dob time.Time, requested []string, now time.Time) map[Name]bool {
	age := Age(dob, now)
	names := p.ParseNames(requested)
	claims := make(map[Name]bool, len(names))

	for _, n := range names {
		claims[n] = age >= p.thresholds[n]
	}

	return claims
}

// Age returns the number of whole years between dob and now, compared by calendar month and day in UTC.
func Age(dob, now time.Time) int {
	dob, now = dob.UTC(), now.UTC()

	age := now.Year() - dob.Year()

	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}

	return age
}

// ParseDate parses a YYYY-MM-DD date of birth as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}

	return d, nil
}
