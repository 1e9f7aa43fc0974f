package svcrouter

import "fmt"

// cacheName identifies this cache in Cache-Status header values.
const cacheName = "svcrouter"

type CacheStatusStatus string

const (
	CacheStatusHit CacheStatusStatus = "hit"
	CacheStatusFwd CacheStatusStatus = "fwd"
)

type CacheStatusFwdReason string

const (
	// The cache did not contain a response for the requested service.
	CacheStatusFwdUriMiss CacheStatusFwdReason = "uri-miss"
)

// CacheStatus describes how the cache handled a request, in the format of
// the Cache-Status response header field (RFC 9211).
type CacheStatus struct {
	Status    CacheStatusStatus
	FwdReason CacheStatusFwdReason
	// Stored is true when the backend response was written to the cache.
	Stored bool
	// Collapsed is true when the response was shared with a concurrent miss.
	Collapsed bool
}

func (cs *CacheStatus) Hit() {
	cs.Status = CacheStatusHit
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason CacheStatusFwdReason) {
	cs.Status = CacheStatusFwd
	cs.FwdReason = reason
}

func (cs *CacheStatus) String() string {
	status := fmt.Sprintf("%s; %s", cacheName, cs.Status)
	if cs.Status == CacheStatusFwd && cs.FwdReason != "" {
		status = fmt.Sprintf("%s=%s", status, cs.FwdReason)
	}
	if cs.Stored {
		status = status + "; stored"
	}
	if cs.Collapsed {
		status = status + "; collapsed"
	}
	return status
}
