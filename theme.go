/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import "fmt"

type Theme string

const (
	ThemeAnimals Theme = "animals"
	ThemeSports  Theme = "sports"
	ThemeJobs    Theme = "jobs"
	ThemeMovies  Theme = "movies"
)

// requiredThemes is the closed set every word bank must cover, in display order.
var requiredThemes = []Theme{ThemeAnimals, ThemeSports, ThemeJobs, ThemeMovies}

func (t Theme) valid() bool {
	for _, r := range requiredThemes {
		if t == r {
			return true
		}
	}
	return false
}

func parseTheme(s string) (Theme, error) {
	t := Theme(s)
	if !t.valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTheme, s)
	}
	return t, nil
}
