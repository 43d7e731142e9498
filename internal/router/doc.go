// Package router maps request paths to backend routes.
//
// A Table is built once at startup and never changes. Resolve picks the
// route with the longest prefix that matches the path on whole segments:
// "/api/asgard" matches "/api/asgard" and "/api/asgard/characters" but
// not "/api/asgardians".
package router
