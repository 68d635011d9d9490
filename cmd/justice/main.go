package main

import (
	"log"

	"justice/cmd/internal/app"
)

func main() {
	if err := app.Main(); err != nil {
		log.Fatal(err)
	}
}
