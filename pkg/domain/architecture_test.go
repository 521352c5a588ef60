package domain

import (
	"testing"

	"cpgcore/testutil"
)

func TestDomainDependsOnNothingInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.InternalImportForbidden, testutil.SurfaceImportForbidden),
		"domain records are shared by every stage")
}
