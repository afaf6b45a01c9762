package main

import (
	"flag"
	"log"
	"oabt_client/internal/app"
	"oabt_client/internal/config"
)

func main() {
	configDir := flag.String("config", "configs", "配置文件目录（包含 config.yaml）")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to start client bridge: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Client bridge stopped: %v", err)
	}
}
