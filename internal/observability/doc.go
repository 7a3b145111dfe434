// Package observability builds the process logger.
//
// Components receive a *zap.Logger through their constructors; request-scoped
// lines carry the request_id field set by the router's RequestID middleware.
package observability
