package main

import (
	"log"

	"concert-ticketing/cmd"
	_ "concert-ticketing/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
