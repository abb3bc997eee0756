package riot

import "strings"

// Platform is a League of Legends platform shard.
type Platform uint8

const (
	PlatformUnknown Platform = iota
	BR1
	EUN1
	EUW1
	JP1
	KR
	LA1
	LA2
	ME1
	NA1
	OC1
	PH2
	RU
	SG2
	TH2
	TR1
	TW2
	VN2
	PBE1
)

var platforms = [...]struct{ slug, route string }{
	PlatformUnknown: {"", ""},
	BR1:             {"BR", "BR1"},
	EUN1:            {"EUNE", "EUN1"},
	EUW1:            {"EUW", "EUW1"},
	JP1:             {"JP", "JP1"},
	KR:              {"KR", "KR"},
	LA1:             {"LAN", "LA1"},
	LA2:             {"LAS", "LA2"},
	ME1:             {"MENA", "ME1"},
	NA1:             {"NA", "NA1"},
	OC1:             {"OCE", "OC1"},
	PH2:             {"PH", "PH2"},
	RU:              {"RU", "RU"},
	SG2:             {"SG", "SG2"},
	TH2:             {"TH", "TH2"},
	TR1:             {"TR", "TR1"},
	TW2:             {"TW", "TW2"},
	VN2:             {"VN", "VN2"},
	PBE1:            {"PBE", "PBE1"},
}

// ParsePlatform accepts either the public slug ("EUW") or the routing value
// ("EUW1"), case-insensitively.
func ParsePlatform(s string) (Platform, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return PlatformUnknown, false
	}
	for i := 1; i < len(platforms); i++ {
		if platforms[i].slug == s || platforms[i].route == s {
			return Platform(i), true
		}
	}
	return PlatformUnknown, false
}

// String returns the public slug used in URLs and the store.
func (p Platform) String() string {
	if int(p) >= len(platforms) {
		return ""
	}
	return platforms[p].slug
}

// Route returns the Riot routing value, e.g. "EUW1".
func (p Platform) Route() string {
	if int(p) >= len(platforms) {
		return ""
	}
	return platforms[p].route
}

// Host is the API host label for the platform.
func (p Platform) Host() string { return strings.ToLower(p.Route()) }

func (p Platform) Valid() bool { return p != PlatformUnknown && int(p) < len(platforms) }
