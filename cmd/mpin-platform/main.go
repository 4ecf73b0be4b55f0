// Command mpin-platform serves a standalone in-memory M-Pin platform for
// local development.
package main

import (
	"log"
	"os"
	"strconv"

	"github.com/layer-3/mpin/mpintest"
)

func main() {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8000"
	}
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	platform, err := mpintest.New()
	if err != nil {
		log.Fatalf("Failed to create platform: %v", err)
	}

	// Optional fixed-PIN-length project configuration
	if projectID := os.Getenv("PROJECT_ID"); projectID != "" {
		pinLength := 0
		if raw := os.Getenv("PIN_LENGTH"); raw != "" {
			pinLength, err = strconv.Atoi(raw)
			if err != nil {
				log.Fatalf("Invalid PIN_LENGTH: %v", err)
			}
		}
		platform.SetProject(mpintest.Project{
			ID:                 projectID,
			Name:               projectID,
			PinLength:          pinLength,
			VerificationMethod: "code",
		})
	}

	log.Printf("M-Pin platform listening on %s, advertising %s", addr, baseURL)
	if err := platform.Run(addr, baseURL); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
