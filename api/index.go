package handler

import (
	"net/http"

	"giftsplit-backend/bootstrap"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

var fiberApp *fiber.App

func init() {
	var err error
	fiberApp, err = bootstrap.New()
	if err != nil {
		log.Fatal().Err(err).Msg("app create failed")
	}
}

// Handler is the Vercel serverless entry point. All requests are rewritten here.
func Handler(w http.ResponseWriter, r *http.Request) {
	r.RequestURI = r.URL.String()
	bootstrap.HTTPHandler(fiberApp).ServeHTTP(w, r)
}
