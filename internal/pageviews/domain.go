package pageviews

import (
	"fmt"
	"strings"

	"github.com/vegardege/pvduck/internal/errors"
)

// DefaultDomain is the project of a domain code without a project suffix.
const DefaultDomain = "wikipedia.org"

// projectSuffixes maps the project abbreviations used in domain codes to
// their domain.
var projectSuffixes = map[string]string{
	"b":   "wikibooks.org",
	"d":   "wiktionary.org",
	"f":   "wikimediafoundation.org",
	"m":   "wikimedia.org",
	"n":   "wikinews.org",
	"q":   "wikiquote.org",
	"s":   "wikisource.org",
	"v":   "wikiversity.org",
	"voy": "wikivoyage.org",
	"w":   "mediawiki.org",
	"wd":  "wikidata.org",
}

// DomainCode is a parsed domain code.
type DomainCode struct {
	Language string
	Domain   string
	Mobile   bool
}

// ParseDomainCode splits a domain code such as "en", "de.m", "en.m.voy" or
// "commons.m" into its language, project domain and mobile flag.
//
// A trailing "m" is the mobile marker except after the name of a
// wikimedia.org site, where it is the project suffix.
func ParseDomainCode(code string) (DomainCode, error) {
	parts := strings.Split(code, ".")
	if parts[0] == "" || len(parts) > 3 {
		return DomainCode{}, invalidDomainCode(code, "malformed")
	}

	dc := DomainCode{Language: parts[0], Domain: DefaultDomain}
	rest := parts[1:]

	switch len(rest) {
	case 1:
		if rest[0] == "m" && !wikimediaSites[dc.Language] {
			dc.Mobile = true
			break
		}
		domain, ok := projectSuffixes[rest[0]]
		if !ok {
			return DomainCode{}, invalidDomainCode(code, "unknown project")
		}
		dc.Domain = domain
	case 2:
		if rest[0] != "m" {
			return DomainCode{}, invalidDomainCode(code, "unknown mobile marker")
		}
		domain, ok := projectSuffixes[rest[1]]
		if !ok {
			return DomainCode{}, invalidDomainCode(code, "unknown project")
		}
		dc.Mobile = true
		dc.Domain = domain
	}
	return dc, nil
}

// wikimediaSites are the wikimedia.org sites that appear in dumps with the
// bare "m" project suffix.
var wikimediaSites = map[string]bool{
	"advisory":   true,
	"commons":    true,
	"foundation": true,
	"incubator":  true,
	"login":      true,
	"meta":       true,
	"outreach":   true,
	"species":    true,
	"strategy":   true,
	"usability":  true,
	"wikimania":  true,
	"wikitech":   true,
}

func invalidDomainCode(code, reason string) error {
	return fmt.Errorf("%q: %s: %w", code, reason, errors.ErrInvalidDomainCode)
}
