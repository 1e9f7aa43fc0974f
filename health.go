package svcrouter

import "net/http"

// HealthPath is the liveness probe route.
const HealthPath = "/health"

// Health answers the liveness probe. It never looks at the cache or the registry.
func Health() Response {
	return textResponse(http.StatusOK, "OK")
}
