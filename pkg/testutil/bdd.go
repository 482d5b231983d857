package testutil

import "testing"

// Given, When and Then name the steps of a scenario test. Steps run in order
// as subtests and share state through the enclosing closure, so a failed
// Given stops the steps that depend on it.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run("Given "+desc, fn) {
		t.FailNow()
	}
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+desc, fn)
}
