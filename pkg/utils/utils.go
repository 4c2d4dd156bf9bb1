package utils

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

func PrettyPrint(value interface{}) string {
	b, err := json.Marshal(value)
	if err != nil {
		log.Info().Err(err).Msg("Cannot pretty print")
	}
	return string(b)
}

func RemoveRegexp(value string, expression string) string {
	if expression == "" {
		return value
	}
	regex := regexp.MustCompile("(?i)" + expression)
	return strings.TrimSpace(regex.ReplaceAllString(value, ""))
}

var nonIdentifier = regexp.MustCompile("[^a-z0-9]+")

// SanitizeName lowercases a display name and collapses everything that is
// not a letter or digit into single underscores, e.g. "Living Room" becomes
// "living_room". Used to derive stable identifiers from gateway names.
func SanitizeName(name string) string {
	name = strings.ToLower(name)
	name = nonIdentifier.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}
