package main

import (
	"os"

	"github.com/guildhall-app/guildhall/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
