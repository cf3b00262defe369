package domain_test

import (
	"strings"
	"testing"

	"dbtlineage/testutil"
)

func TestDomainDoesNotReachIntoInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImport, "domain is the public contract")
	testutil.AssertNoTransitiveDependency(t, ".", func(p string) bool {
		return strings.HasPrefix(p, "dbtlineage/internal")
	}, "domain must not depend on internal packages")
}
