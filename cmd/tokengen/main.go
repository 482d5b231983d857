// Package main generates holder tokens for local development. Tokens are
// signed with HOLDER_TOKEN_SIGNING_KEY, or a dev key when it is unset.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"visitproof/internal/platform/config"
	"visitproof/internal/stamps/models"
	"visitproof/pkg/platform/middleware/auth"
)

const (
	devSigningKey   = "dev-holder-key-change-in-production"
	defaultTokenTTL = time.Hour
)

type tokenOutput struct {
	Token     string `json:"token"`
	HolderID  string `json:"holder_id"`
	ExpiresIn string `json:"expires_in"`
	Header    string `json:"header"`
}

func main() {
	holder := flag.String("holder", "", "Holder ID, usually a wallet address (required)")
	ttl := flag.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	holderID := models.NormalizeHolderID(*holder)
	if holderID == "" {
		fmt.Fprintln(os.Stderr, "Error: -holder is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.FromEnv()
	key := cfg.Auth.HolderTokenSigningKey
	keyType := "configured"
	if key == "" {
		key = devSigningKey
		keyType = "dev"
	}

	token, err := auth.NewHolderTokens(key, cfg.Auth.HolderTokenIssuer).Issue(holderID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(tokenOutput{
			Token:     token,
			HolderID:  holderID,
			ExpiresIn: ttl.String(),
			Header:    "Authorization: Bearer <token>",
		})
		return
	}

	fmt.Println("Holder Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Signing Key: %s\n", keyType)
	fmt.Printf("Holder:      %s\n", holderID)
	fmt.Printf("Expires In:  %s\n", *ttl)
	fmt.Println()
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println(`  curl -H "Authorization: Bearer <token>" -H "Content-Type: application/json" \`)
	fmt.Println(`       -d '{"locationId":"...","secret":"..."}' http://localhost:8080/stamps/collect`)
}
