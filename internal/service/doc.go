// Package service contains the gateway's use cases. It coordinates the
// stores in internal/store with the scanning API and the mailer to fulfill
// application features.
//
// Key components:
//
//   - MemberService: OTP onboarding, user info capture and member
//     registration in the scanning system
//   - TaskService: rate-limited scan submission and task lookup
//   - AccessLogService: the visitor counter
//   - DownloadService: signed report download links
//   - HistoryRecorder: the task transition trail, fed by internal/events
//
// Services receive their dependencies through constructor injection and
// never depend on a specific store implementation. Store errors are wrapped
// in *ServiceError, with not-found errors translated to this package's
// sentinels so handlers can map them to responses.
package service
