// Command exchange-smoketest verifies venue connectivity: it reads an account
// state and a market state and reports latency. No orders are placed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/helix-markets/agentfleet/src/exchange"
)

func main() {
	_ = godotenv.Load()

	var (
		baseURL = flag.String("url", os.Getenv("EXCHANGE_URL"), "venue base URL")
		address = flag.String("address", "", "account address to query")
		asset   = flag.String("asset", "BTC", "market symbol to query")
	)
	flag.Parse()

	if *baseURL == "" {
		log.Fatal("missing -url (or EXCHANGE_URL)")
	}

	client := exchange.NewClient(exchange.Config{
		BaseURL: *baseURL,
		Timeout: 10 * time.Second,
		Logger:  log.Default(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	mk, err := client.MarketState(ctx, *asset)
	if err != nil {
		log.Fatalf("market state: %v", err)
	}
	fmt.Printf("market %s: mark=%s mid=%s change24h=%.2f%% (%s)\n",
		mk.Asset, mk.MarkPrice, mk.MidPrice, mk.Change24h*100, time.Since(start).Round(time.Millisecond))

	if *address == "" {
		fmt.Println("no -address given, skipping account state")
		return
	}
	start = time.Now()
	acct, err := client.AccountState(ctx, *address)
	if err != nil {
		log.Fatalf("account state: %v", err)
	}
	fmt.Printf("account %s: equity=%s margin_used=%s positions=%d (%s)\n",
		acct.Address, acct.Equity, acct.MarginUsed, len(acct.Positions), time.Since(start).Round(time.Millisecond))
}
