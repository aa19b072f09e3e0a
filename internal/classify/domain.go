// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify maps storage URLs to research-domain tags. The first
// path segment of an object key names the project directory it was uploaded
// to; a static alias table folds directory names onto canonical tags.
package classify

import (
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/paperflow/pkg/types"
)

// DomainTest tags objects uploaded to the test directory. It is a real
// domain for classification but is hidden from the file library.
const DomainTest types.DomainTag = "test"

// aliases maps a lower-cased first path segment, with a trailing slash, to
// its canonical domain tag.
var aliases = map[string]types.DomainTag{
	"test/":       DomainTest,
	"deepmd/":     "deepmd",
	"deepmd-kit/": "deepmd",
	"abacus/":     "abacus",
	"unimol/":     "unimol",
	"ai4s/":       "ai4s",
}

// Domain returns the domain tag for rawURL. It never fails: unparseable URLs
// and root-level objects are "unclassified", directories missing from the
// alias table are "unknown".
//
// A single segment that names a known directory ("https://h/deepmd" or
// "https://h/deepmd/") is classified as that directory, so appending a
// trailing slash never changes the result.
func Domain(rawURL string) types.DomainTag {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return types.DomainUnclassified
	}

	segments := pathSegments(u.Path)
	if len(segments) == 0 {
		return types.DomainUnclassified
	}

	if tag, ok := aliases[strings.ToLower(segments[0])+"/"]; ok {
		return tag
	}
	if len(segments) == 1 {
		return types.DomainUnclassified
	}
	return types.DomainUnknown
}

// Known returns the canonical domain tags in sorted order.
func Known() []types.DomainTag {
	seen := make(map[types.DomainTag]bool, len(aliases))
	var tags []types.DomainTag
	for _, tag := range aliases {
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

func pathSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
