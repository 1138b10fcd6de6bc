package main

import (
	"os"

	"github.com/bgpkit/wayback-rpki/internal/app"
)

func main() {
	a := app.New()
	if err := a.Run(os.Args[1:]); err != nil {
		a.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}
