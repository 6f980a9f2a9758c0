package testutil

import "testing"

// Given, When, and Then wrap t.Run with a labelled subtest so pipeline tests
// read as scenario steps (seed a stream, issue a command, inspect the fold)
// without pulling in a BDD framework.
func Given(t *testing.T, step string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+step, fn)
}

func When(t *testing.T, step string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+step, fn)
}

func Then(t *testing.T, step string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+step, fn)
}
