// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/paperflow/pkg/types"
)

const host = "https://deepmodeling-docs-r2.deepmd.us"

func TestDomain(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want types.DomainTag
	}{
		{"test directory", host + "/test/test_dpgen.pdf", "test"},
		{"deepmd", host + "/deepmd/guide.pdf", "deepmd"},
		{"deepmd-kit alias", host + "/deepmd-kit/tutorial.pdf", "deepmd"},
		{"abacus", host + "/abacus/manual.pdf", "abacus"},
		{"unimol", host + "/unimol/docs.pdf", "unimol"},
		{"ai4s", host + "/ai4s/paper.pdf", "ai4s"},
		{"upper case segment", host + "/DeePMD-Kit/x.pdf", "deepmd"},

		{"multi-level test", host + "/test/subdir/file.pdf", "test"},
		{"multi-level deepmd", host + "/deepmd/v1/api/guide.pdf", "deepmd"},
		{"multi-level abacus", host + "/abacus/docs/tutorial/basic.pdf", "abacus"},

		{"root file", host + "/file.pdf", types.DomainUnclassified},
		{"root readme", host + "/README.pdf", types.DomainUnclassified},
		{"root slash", host + "/", types.DomainUnclassified},
		{"bare host", host, types.DomainUnclassified},
		{"empty", "", types.DomainUnclassified},
		{"unparseable", "http://[::1", types.DomainUnclassified},

		{"unknown dir", host + "/unknown-dir/file.pdf", types.DomainUnknown},
		{"random dir", host + "/random/document.pdf", types.DomainUnknown},
		{"other project", host + "/other-project/guide.pdf", types.DomainUnknown},

		{"directory trailing slash", host + "/test/", "test"},
		{"deepmd trailing slash", host + "/deepmd/", "deepmd"},

		{"other host test", "https://another-domain.com/test/file.pdf", "test"},
		{"plain http", "http://example.org/deepmd/guide.pdf", "deepmd"},
		{"other host abacus", "https://docs.company.net/abacus/manual.pdf", "abacus"},
		{"s3 scheme", "s3://papers/unimol/a.pdf", "unimol"},
		{"query string ignored", host + "/ai4s/p.pdf?version=2", "ai4s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Domain(tt.url))
		})
	}
}

func TestDomain_EveryAliasResolves(t *testing.T) {
	for segment, tag := range aliases {
		url := host + "/" + segment + "paper.pdf"
		assert.Equal(t, tag, Domain(url), "alias %q", segment)
	}
}

func TestDomain_TrailingSlashInvariant(t *testing.T) {
	urls := []string{
		host,
		host + "/",
		host + "/file.pdf",
		host + "/test",
		host + "/test/file.pdf",
		host + "/deepmd-kit",
		host + "/random-dir/x.pdf",
		host + "/random-dir",
		host + "/abacus/docs/tutorial/basic.pdf",
	}
	for _, u := range urls {
		assert.Equal(t, Domain(u), Domain(u+"/"), "url %q", u)
	}
}

func TestDomain_Total(t *testing.T) {
	allowed := map[types.DomainTag]bool{
		types.DomainUnclassified: true,
		types.DomainUnknown:      true,
	}
	for _, tag := range Known() {
		allowed[tag] = true
	}

	inputs := []string{
		"", " ", "/", "//", "://", "%%%", "ftp://x/y/z", "https://h//deepmd//a.pdf",
		"mailto:someone@example.com", "not a url at all", "https://h/a/b/c/d/e/f",
	}
	for _, in := range inputs {
		got := Domain(in)
		assert.True(t, allowed[got], "Domain(%q) = %q", in, got)
		assert.Equal(t, got, Domain(in), "Domain must be deterministic for %q", in)
	}
}

func TestKnown(t *testing.T) {
	assert.Equal(t, []types.DomainTag{"abacus", "ai4s", "deepmd", "test", "unimol"}, Known())
	assert.NotContains(t, Known(), types.DomainTag("deepmd-kit"))
	assert.Contains(t, Known(), DomainTest)
}
