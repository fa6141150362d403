package sources

const (
	DefaultBaseURL = "http://localhost:8000"

	EventsPath     = "/api/twitter_conflicts/tweets.geojson"
	UsernamesPath  = "/api/twitter_conflicts/usernames"
	TensionPath    = "/api/twitter_conflicts/tension_index"
	DisputedPath   = "/api/twitter_conflicts/disputed_areas.geojson"
	WorldAreasPath = "/api/twitter_conflicts/world_areas.geojson"
)
