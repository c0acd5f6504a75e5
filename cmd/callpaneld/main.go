package main

import (
	"context"
	"log"
	"os"

	"callpanel/internal/config"
	"callpanel/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("CALLPANEL_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("callpaneld: %v", err)
	}
}
