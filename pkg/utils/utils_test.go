package utils

import (
	"testing"
)

func TestRemoveRegexp(t *testing.T) {
	expect(t, RemoveRegexp("Light Location", "light"), "Location")
	expect(t, RemoveRegexp("light location", "light"), "location")
	expect(t, RemoveRegexp("Location Light", ""), "Location Light")
	expect(t, RemoveRegexp("Location Light", "(light|cover)"), "Location")
	expect(t, RemoveRegexp("Location Cover", "(light|cover)"), "Location")
	expect(t, RemoveRegexp("light_location", "(light|cover)_"), "location")
}

func TestSanitizeName(t *testing.T) {
	expect(t, SanitizeName("Living Room"), "living_room")
	expect(t, SanitizeName("Salotto"), "salotto")
	expect(t, SanitizeName("Luce - Cucina 2"), "luce_cucina_2")
	expect(t, SanitizeName("  Tapparella  "), "tapparella")
	expect(t, SanitizeName("___"), "")
	expect(t, SanitizeName(""), "")
}

func expect(t *testing.T, result string, expect string) {
	if expect != result {
		t.Errorf("Expected='%s' but got '%s'", expect, result)
	}
}
