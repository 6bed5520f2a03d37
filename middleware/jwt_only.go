package middleware

import (
	"net/http"

	goFactor "github.com/MrEthical07/goFactor"
)

// RequireTwoFactor admits only tokens minted after an affirmed second
// factor. It verifies the token alone.
func RequireTwoFactor(engine *goFactor.Engine) func(http.Handler) http.Handler {
	return guard(engine, goFactor.AuthorizeTokenOnly, true)
}
