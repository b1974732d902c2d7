package base

// pluralIcon maps a singular icon name to the variant shown for objects
// with children; singularIcon is its inverse. Icons not listed are used
// as-is in both directions.
var pluralIcon = map[string]string{
	"book":     "books",
	"cog":      "cogs",
	"envelope": "envelopes",
	"folder":   "folder_open",
	"heart":    "hearts",
	"key":      "keys",
	"led_blue": "led_blue_light",
	"note":     "notes",
	"person":   "persons",
}

var singularIcon = invert(pluralIcon)

func invert(m map[string]string) map[string]string {
	inverted := make(map[string]string, len(m))
	for singular, plural := range m {
		inverted[plural] = singular
	}
	return inverted
}
