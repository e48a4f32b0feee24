// Package middleware provides net/http middleware over an
// [authority.Engine]: bearer-token validation ([Guard]), validation plus
// session timeout enforcement ([GuardWithSession]), and the double-submit
// CSRF check ([RequireCSRF]).
//
// The middleware never writes error details to responses; failed checks
// answer 401 or 403 with a constant body.
package middleware
