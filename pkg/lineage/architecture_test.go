package lineage_test

import (
	"testing"

	"dbtlineage/testutil"
)

func TestLineageImportsOnlyStdlib(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.NonStdlibImport, "lineage hashing must stay dependency-free")
}
