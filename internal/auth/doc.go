// Package auth validates bearer tokens for the retrieval API.
//
// Tokens are HMAC-signed JWTs carrying a subject and space separated scopes.
// Validated claims are attached to the request context by
// middleware.AuthMiddleware.
package auth
