package tracker

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ClassInfo describes one hazard class the detection models were trained on
type ClassInfo struct {
	// Label is the readable hazard name shown on overlays
	Label string
	// Severity is the hazard severity class
	Severity Severity
	// NominalHeight is the typical physical height of the hazard in
	// meters, used to estimate distance from the size of its bounding box
	NominalHeight float32
}

// ClassMap maps detector class IDs to hazard class information.  The class
// ID is the line number in the class map file the models were trained on
type ClassMap struct {
	classes []ClassInfo
}

// LoadClassMap reads the hazard classes from the given text file.  Each
// line holds one class in the form "label severity nominal_height_m", for
// example "exposed_rebar critical 1.2"
func LoadClassMap(file string) (*ClassMap, error) {

	// open the file
	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	// create a scanner to read the file
	scanner := bufio.NewScanner(f)

	var classes []ClassInfo

	// read and parse each line
	for scanner.Scan() {

		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)

		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed class line %q", line)
		}

		severity, err := parseSeverity(fields[1])

		if err != nil {
			return nil, fmt.Errorf("class %q: %w", fields[0], err)
		}

		height, err := strconv.ParseFloat(fields[2], 32)

		if err != nil {
			return nil, fmt.Errorf("class %q: invalid height: %w", fields[0], err)
		}

		classes = append(classes, ClassInfo{
			Label:         fields[0],
			Severity:      severity,
			NominalHeight: float32(height),
		})
	}

	// check for errors during scanning
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return &ClassMap{classes: classes}, nil
}

// NewClassMap builds a class map from an in-memory class list
func NewClassMap(classes []ClassInfo) *ClassMap {
	return &ClassMap{classes: classes}
}

// Len returns the number of classes defined
func (c *ClassMap) Len() int {
	return len(c.classes)
}

// Info returns the class information for the given class ID.  Unknown
// classes report a minor severity so unexpected model outputs still render
// rather than vanish
func (c *ClassMap) Info(classID int) ClassInfo {

	if classID < 0 || classID >= len(c.classes) {
		return ClassInfo{
			Label:         fmt.Sprintf("class_%d", classID),
			Severity:      SeverityMinor,
			NominalHeight: 1.0,
		}
	}

	return c.classes[classID]
}

// parseSeverity converts a severity name to its Severity value
func parseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "critical":
		return SeverityCritical, nil
	case "major":
		return SeverityMajor, nil
	case "minor":
		return SeverityMinor, nil
	}
	return SeverityMinor, fmt.Errorf("unknown severity %q", s)
}
