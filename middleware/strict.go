package middleware

import (
	"net/http"

	goFactor "github.com/MrEthical07/goFactor"
)

// RequireStrict also compares the principal's current security stamp on
// every request.
func RequireStrict(engine *goFactor.Engine) func(http.Handler) http.Handler {
	return Guard(engine, goFactor.AuthorizeStrict)
}
