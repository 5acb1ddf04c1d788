// Package api handles incoming HTTP requests, request validation and
// response formatting. It adapts HTTP to the member onboarding, task
// submission, report download and access log services, and relays the
// scanner's management endpoints.
package api
