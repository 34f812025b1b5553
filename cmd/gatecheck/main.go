// Command gatecheck verifies ticket tokens offline, the way a gate device
// holding the server secret does before it asks the server to admit.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"ticket-inventory/internal/token"

	flag "github.com/spf13/pflag"
)

func main() {
	secret := flag.StringP("secret", "s", os.Getenv("TOKEN_SECRET"), "token secret (defaults to $TOKEN_SECRET)")
	event := flag.StringP("event", "e", "", "expected event id")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gatecheck [flags] TOKEN...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	issuer, err := token.NewIssuer([]byte(*secret))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	failed := false
	for _, tok := range flag.Args() {
		if !check(issuer, tok, *event) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func check(issuer *token.Issuer, tok, event string) bool {
	claims, err := issuer.VerifyFormat(tok)
	if err != nil {
		fmt.Printf("invalid\t%s\n", err)
		return false
	}
	if event != "" && claims.EventID != event {
		fmt.Printf("wrong event\t%s\n", claims.EventID)
		return false
	}

	out, _ := json.Marshal(claims)
	fmt.Printf("ok\t%s\n", out)
	return true
}
