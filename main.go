package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/chenoh1990/scraping-assignment/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatalf("scraper failed: %v", err)
	}
}
