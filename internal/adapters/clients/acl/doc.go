// Package acl is the anti-corruption layer between the remote quote source
// and the domain. The remote's JSON shape, status codes and transport
// failures stop here: callers only see domain.Quote values and domain errors.
//
// The source returns a JSON array of objects with "q" (text) and "a"
// (author) members:
//
//	[{"q": "Stay hungry.", "a": "Steve Jobs", "h": "<blockquote>..."}]
//
// A non-success status or an unparseable body becomes domain.BadRequestError.
// An unreachable source or an open circuit becomes domain.UnavailableError.
package acl
