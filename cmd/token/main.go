// Command token mints a signed token for the /ws/live feed.
//
//	JWT_SECRET=... token -client kitchen-dashboard
package main

import (
	"flag"
	"fmt"
	"log"

	"tempmon/config"
	"tempmon/services"
)

func main() {
	client := flag.String("client", "dashboard", "name recorded in the token")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	token, err := services.NewAuthService(cfg.JWT).GenerateToken(*client)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
