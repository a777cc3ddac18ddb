// Package testdata embeds the wall, calibration and route fixtures shared by
// the package and end-to-end tests.
package testdata

import (
	"embed"
	"fmt"
)

//go:embed walls/* calibrations/* routes/*
var fixturesFS embed.FS

// LoadWall loads a wall diagram fixture by file name.
func LoadWall(name string) ([]byte, error) {
	return load("walls/" + name)
}

// LoadCalibration loads a calibration fixture by file name.
func LoadCalibration(name string) ([]byte, error) {
	return load("calibrations/" + name)
}

// LoadRoute loads a route fixture by file name.
func LoadRoute(name string) ([]byte, error) {
	return load("routes/" + name)
}

// Walls lists the embedded wall diagram fixtures.
func Walls() ([]string, error) {
	entries, err := fixturesFS.ReadDir("walls")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func load(path string) ([]byte, error) {
	data, err := fixturesFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load fixture %s: %w", path, err)
	}
	return data, nil
}
