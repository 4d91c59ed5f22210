package main

import (
	"log"

	"cookiejar/services/cookiejard"
)

func main() {
	if err := cookiejard.Main(); err != nil {
		log.Fatalf("cookiejard: %v", err)
	}
}
