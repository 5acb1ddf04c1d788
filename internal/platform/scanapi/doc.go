// Package scanapi is the client for the external mobile-application scanning
// API. It submits files, polls task status, downloads result artifacts and
// proxies member, history and usage-export calls.
//
// Every request carries the configured bearer token and is bounded by its
// own timeout. Non-2xx answers surface as *APIError; IsTransient tells
// network trouble and 5xx responses apart from permanent failures. Result
// artifacts are typed from their leading bytes, since the scanner does not
// send a reliable Content-Type.
package scanapi
