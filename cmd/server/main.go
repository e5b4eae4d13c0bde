package main

import (
	"log"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app"
)

func main() {
	app.MustInitDB()
	router, err := app.NewRouter()
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}
	router.Run("0.0.0.0:8080")
}
