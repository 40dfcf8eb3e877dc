// Package pipeline sends HTTP requests to the API on behalf of the current
// session.
//
// Every request gets the stored access token as a bearer credential. A 401
// triggers one refresh through a TokenSource and exactly one retry of the
// same request; callers see either the final response or an error matching
// common.ErrSessionExpired, never the intermediate 401. Other statuses are
// returned untouched and can be turned into an *APIError with Response.Err.
package pipeline
