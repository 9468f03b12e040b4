// Command admintoken mints a signed staff token for the admin API.
//
//	admintoken --sub ops@example.com --role manager --ttl 8h
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/bus-ticketing-crm/internal/config"
	"github.com/iliyamo/bus-ticketing-crm/internal/utils"
)

func main() {
	cfg, err := config.LoadJWT()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	fs := pflag.NewFlagSet("admintoken", pflag.ExitOnError)
	sub := fs.String("sub", "admin", "token subject (staff login)")
	role := fs.String("role", "admin", "role claim: admin or manager")
	ttl := fs.Duration("ttl", time.Duration(cfg.AccessTTLMin)*time.Minute, "token lifetime")
	secret := fs.String("secret", cfg.Secret, "signing secret, defaults to JWT_SECRET")
	_ = fs.Parse(os.Args[1:])

	if *role != "admin" && *role != "manager" {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}
	tok, err := utils.NewAccessToken(*secret, *sub, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(tok)
}
