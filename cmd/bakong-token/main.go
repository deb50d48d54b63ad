// bakong-token renews the settlement-API bearer token for a registered
// email and prints it, ready for BAKONG_TOKEN in the .env.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"khqrgw/internal/bakong"
)

func main() {
	email := flag.String("email", "", "email registered with the Bakong open API")
	api := flag.String("api", "https://api-bakong.nbc.gov.kh", "settlement API base URL")
	flag.Parse()

	if *email == "" {
		log.Fatal("usage: bakong-token -email you@example.com [-api URL]")
	}

	client := bakong.NewClient(bakong.Config{
		BaseURL: *api,
		Timeout: 15 * time.Second,
		Retries: 2,
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	token, err := client.RenewToken(ctx, *email)
	if err != nil {
		log.Fatalf("token renewal failed: %v", err)
	}
	fmt.Println(token)
}
