package nav

import "time"

// ProviderName selects the mapping provider backing the collaborators
type ProviderName string

const (
	ProviderMapbox ProviderName = "mapbox"
	ProviderGoogle ProviderName = "google"
)

// DefaultProvider is used when none is configured
const DefaultProvider = ProviderMapbox

// Profile represents the routing profile
type Profile string

const (
	ProfileDriving        Profile = "driving"
	ProfileDrivingTraffic Profile = "driving-traffic"
	ProfileWalking        Profile = "walking"
	ProfileCycling        Profile = "cycling"
)

// DefaultProfile is the default routing profile if none is specified
const DefaultProfile = ProfileDriving

const (
	// DefaultLimit caps the number of geocoding candidates
	DefaultLimit = 5
	// DefaultCountry and DefaultBBox bias geocoding to India
	DefaultCountry = "IN"
	DefaultBBox    = "68,6,97,37"
	// DefaultTimeout bounds a single collaborator call
	DefaultTimeout = 10 * time.Second

	mapboxBaseURL = "https://api.mapbox.com"
)

// IsValid checks if the provider name is valid
func (p ProviderName) IsValid() bool {
	switch p {
	case ProviderMapbox, ProviderGoogle:
		return true
	default:
		return false
	}
}

// IsValid checks if the routing profile is valid
func (p Profile) IsValid() bool {
	switch p {
	case ProfileDriving, ProfileDrivingTraffic, ProfileWalking, ProfileCycling:
		return true
	default:
		return false
	}
}

// Maneuver types as reported on navigation steps
const (
	ManeuverDepart     = "depart"
	ManeuverArrive     = "arrive"
	ManeuverTurn       = "turn"
	ManeuverRoundabout = "roundabout"
	ManeuverRotary     = "rotary"
)

// ManeuverIcon returns the icon name for a maneuver type and modifier
func ManeuverIcon(maneuverType, modifier string) string {
	switch maneuverType {
	case ManeuverArrive:
		return "flag"
	case ManeuverDepart:
		return "navigation"
	case ManeuverRotary, ManeuverRoundabout:
		return "rotate-ccw"
	}

	switch modifier {
	case "left", "sharp left":
		return "arrow-left"
	case "right", "sharp right":
		return "arrow-right"
	case "slight left":
		return "arrow-up-left"
	case "slight right":
		return "arrow-up-right"
	case "uturn":
		return "rotate-cw"
	default:
		return "arrow-up"
	}
}

// ManeuverColor returns the accent color for a maneuver
func ManeuverColor(maneuverType, modifier string) string {
	if maneuverType == ManeuverArrive {
		return "green"
	}
	if maneuverType == ManeuverDepart {
		return "blue"
	}
	switch modifier {
	case "left", "sharp left", "right", "sharp right":
		return "amber"
	}
	return "muted"
}
