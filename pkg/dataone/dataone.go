// Package dataone publishes packages to DataONE member nodes.
package dataone

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Member nodes whose landing pages are known.
const (
	ProductionMemberNode  = "https://knb.ecoinformatics.org/knb/d1/mn"
	DevelopmentMemberNode = "https://dev.nceas.ucsb.edu/knb/d1/mn"
)

// Format ids of metadata documents.
const (
	FormatEML         = "eml://ecoinformatics.org/eml-2.1.1"
	FormatResourceMap = "http://www.openarchives.org/ore/terms"
	FormatOctetStream = "application/octet-stream"
)

// Names of files added to a package besides the tale's own files.
const (
	ManifestFileName    = "manifest.json"
	LicenseFileName     = "LICENSE"
	EnvironmentFileName = "docker-environment.tar.gz"
	EMLFileName         = "metadata.xml"
)

// FileDescriptions describe the files added to a package.
var FileDescriptions = map[string]string{
	EnvironmentFileName: "Holds the dockerfile and additional configurations for the " +
		"underlying compute environment. This environment was used as the " +
		"base image, and includes the the IDE that is used while running the Tale.",
	ManifestFileName: "A configuration file, holding information that is needed to " +
		"reproduce the compute environment.",
	LicenseFileName: "The package's licensing information.",
}

// NewPid returns a new identifier in the form DataONE accepts, "urn:uuid:...".
func NewPid() string {
	return "urn:uuid:" + uuid.NewString()
}

// PackageURL returns the landing page of a package on a member node.
//
// For unknown member nodes, it returns "".
func PackageURL(memberNode string, pid string) string {
	switch strings.TrimSuffix(memberNode, "/") {
	case ProductionMemberNode:
		return "https://search.dataone.org/view/" + pid
	case DevelopmentMemberNode:
		return "https://dev.nceas.ucsb.edu/view/" + pid
	default:
		return ""
	}
}

// IsOrcidID tells whether userId is an ORCID url.
func IsOrcidID(userId string) bool {
	return strings.Contains(userId, "orcid.org")
}

// Directory is the directory of a user id, used in EML.
func Directory(userId string) string {
	if IsOrcidID(userId) {
		return "https://orcid.org"
	}
	return "https://cilogon.org"
}

func withScheme(u string, scheme string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" {
		return u
	}
	parsed.Scheme = scheme
	return parsed.String()
}

// MakeURLHTTP replaces the scheme of u with http.
func MakeURLHTTP(u string) string {
	return withScheme(u, "http")
}

// MakeURLHTTPS replaces the scheme of u with https.
func MakeURLHTTPS(u string) string {
	return withScheme(u, "https")
}

// ResourceMapUser is the user id as resource maps refer: ORCIDs are in http.
func ResourceMapUser(userId string) string {
	if IsOrcidID(userId) {
		return MakeURLHTTP(userId)
	}
	return userId
}

var htmlTag = regexp.MustCompile(`<[^<]+?>`)

// StripHTMLTags removes html tags from s.
func StripHTMLTags(s string) string {
	return htmlTag.ReplaceAllString(s, "")
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB", "PB"}

// SizeProgressMessage tells a file being uploaded, with its size in a readable unit.
func SizeProgressMessage(name string, size int64) string {
	i := 0
	if size > 0 {
		i = int(math.Floor(math.Log(float64(size)) / math.Log(1024)))
	}
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	s := math.Round(float64(size)/math.Pow(1024, float64(i))*100) / 100
	return fmt.Sprintf("Uploading %s  Size: %s %s", name, FormatFloat(s), sizeUnits[i])
}

// LocalFileProgressMessage tells a file being uploaded, with its size in MB.
func LocalFileProgressMessage(name string, size int64) string {
	return fmt.Sprintf("Uploading %s   Size: %s MB", name, FormatFloat(float64(size)/1000000))
}

// FormatFloat formats f with the shortest representation, always with a
// fraction part or an exponent, like "1.0", "2.5" or "1e-06".
func FormatFloat(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
