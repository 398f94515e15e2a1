package trip

import "errors"

// LocationErrorMessage is the advisory recorded when no origin could be resolved
const LocationErrorMessage = "Could not determine your location. Please set an origin manually."

var (
	// ErrLocationUnavailable is returned when every geolocation strategy failed
	ErrLocationUnavailable = errors.New("location unavailable")

	// ErrNoDestination is returned by BuildRoute when nothing is selected
	ErrNoDestination = errors.New("no destination selected")

	// ErrSuperseded is returned by a build whose result was discarded because a newer build was issued
	ErrSuperseded = errors.New("route build superseded")

	// ErrUnknownRoute is returned when selecting an index outside the candidate list
	ErrUnknownRoute = errors.New("route is not a candidate")

	// ErrStopIndex is returned when removing a stop that does not exist
	ErrStopIndex = errors.New("stop index out of range")
)
