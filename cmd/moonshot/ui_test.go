package main

import "testing"

func TestColorEnabledForRespectsNoColorFlag(t *testing.T) {
	if colorEnabledFor(true) {
		t.Fatal("expected color disabled when --no-color is set")
	}
}
