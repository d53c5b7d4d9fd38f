package main

import (
	"log"

	"github.com/knakano/jsonsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
