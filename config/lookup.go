package config

import "os"

// Lookup is a key/value source with defaults, handed to backends at construction
// instead of letting them read the process environment.
type Lookup interface {
	Get(key, fallback string) string
}

type environ struct{}

// Environ returns a Lookup backed by the process environment.
// Empty variables count as unset.
func Environ() Lookup {
	return environ{}
}

func (environ) Get(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// MapLookup is a Lookup backed by a map.
type MapLookup map[string]string

func (m MapLookup) Get(key, fallback string) string {
	if value, ok := m[key]; ok && value != "" {
		return value
	}
	return fallback
}
