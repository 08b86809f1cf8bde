// Package auth identifies the user behind an API request.
//
// Tokens are HS256 JWTs whose subject is the user id. HTTPAuthMiddleware
// verifies the bearer token and stores the user id on the request context,
// where handlers read it with UserFromContext. The token CLI command mints
// tokens with JWTVerifier.Generate.
package auth
