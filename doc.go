// Package authflow implements the client session lifecycle for the Doyence
// estimating front end: a session store, an auth event listener bridging the
// identity provider's event stream, a profile loader with normalization at the
// datastore boundary, a pure navigation decider, and an inactivity monitor.
//
// The identity provider is consumed as an opaque capability through the
// IdentityProvider interface. A first-party reference implementation backed by
// bun repositories and HS256 tokens lives in identity_provider.go.
package authflow
