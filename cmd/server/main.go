package main

import (
	approuters "NiralaChat/internal/app_routers"
	"NiralaChat/internal/configuration"
	"log"
)

func main() {
	container, err := configuration.BuildContainer()
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// Ensure cleanup on shutdown
	defer container.Close()

	approuters.StartServer(container)
}
