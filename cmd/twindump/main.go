package main

import (
	"context"
	"fmt"
	"log"
	"sort"

	"rateadjuster/config"
	applog "rateadjuster/log"
	"rateadjuster/services"
)

// Prints the desired ProductionRate of every twin stored in Firebase.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	if cfg.FirebaseSAJSON == "" {
		log.Fatal("FIREBASE_SERVICE_ACCOUNT_JSON environment variable is not set")
	}
	if cfg.FirebaseDbUrl == "" {
		log.Fatal("FIREBASE_DB_URL environment variable is not set")
	}

	registry, err := services.NewFirebaseTwinRegistry(cfg, applog.GetInstance())
	if err != nil {
		log.Fatalf("Error initializing Firebase registry: %v", err)
	}

	rates, err := registry.ListProductionRates(context.Background())
	if err != nil {
		log.Fatalf("Error reading twins: %v", err)
	}

	fmt.Printf("Total twins found under %s: %d\n", registry.TwinsPath(), len(rates))

	ids := make([]string, 0, len(rates))
	for id := range rates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if rates[id] == nil {
			fmt.Printf("%-24s (no ProductionRate)\n", id)
			continue
		}
		fmt.Printf("%-24s %v%%\n", id, rates[id])
	}
}
