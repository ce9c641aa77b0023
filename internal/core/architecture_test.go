package core

import (
	"testing"

	"tapeview/testutil"
)

// The filter engine publishes through Consumer and must not know who renders.
func TestCoreDoesNotImportDeliveryPackages(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.DeliveryImportForbidden, "core publishes live sets through Consumer only")
}
