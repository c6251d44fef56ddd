package dataone

import (
	"embed"
	"fmt"
)

//go:embed licenses/*.txt
var licenseTexts embed.FS

// License is a license which a package can be published under.
type License struct {
	SPDX string
	Name string
	URL  string
}

// DefaultLicense is applied to tales without license.
const DefaultLicense = "CC-BY-4.0"

var licenses = map[string]License{
	"CC0-1.0": {
		SPDX: "CC0-1.0",
		Name: "Creative Commons Zero v1.0 Universal",
		URL:  "https://creativecommons.org/publicdomain/zero/1.0/",
	},
	"CC-BY-4.0": {
		SPDX: "CC-BY-4.0",
		Name: "Creative Commons Attribution 4.0 International",
		URL:  "https://creativecommons.org/licenses/by/4.0/",
	},
}

// ErrUnknownLicense is returned for licenses which cannot be published.
type ErrUnknownLicense struct {
	SPDX string
}

func (e ErrUnknownLicense) Error() string {
	return fmt.Sprintf("unknown license: %q", e.SPDX)
}

// LicenseOf returns a license by its SPDX id. Empty id means DefaultLicense.
func LicenseOf(spdx string) (License, error) {
	if spdx == "" {
		spdx = DefaultLicense
	}
	l, ok := licenses[spdx]
	if !ok {
		return License{}, ErrUnknownLicense{SPDX: spdx}
	}
	return l, nil
}

// Text is the content of LICENSE file.
func (l License) Text() ([]byte, error) {
	return licenseTexts.ReadFile("licenses/" + l.SPDX + ".txt")
}
