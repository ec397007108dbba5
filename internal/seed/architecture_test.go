package seed

import (
	"testing"

	"estatehub/testutil"
)

// The engine talks to stores and snapshots through domain.Store and
// BatchSource only; drivers are chosen by internal/core.
func TestSeedDoesNotImportInfra(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "seed must not import infra adapters")
}

func TestSeedHasNoDriverDependency(t *testing.T) {
	if testing.Short() {
		t.Skip("shells out to go list")
	}
	testutil.AssertNoTransitiveDependency(t, ".", testutil.DriverImportForbidden, "seed must stay driver agnostic")
}
