// jwt-mint mints HMAC-signed development tokens accepted by the server's
// jwt auth mode. The secret must match auth.secret (or GQLPIPE_AUTH_SECRET).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	var currentUser, err = user.Current()
	if err != nil {
		currentUser = &user.User{Username: "user-1"}
	}

	secret := flag.String("secret", "", "HMAC signing secret (or set JWT_MINT_SECRET)")
	issuer := flag.String("issuer", "", "JWT issuer (optional)")
	audience := flag.String("audience", "gqlpipeline", "JWT audience")
	subject := flag.String("subject", currentUser.Username, "JWT subject")
	tenant := flag.String("tenant", "", "JWT tenant claim (optional)")
	roles := flag.String("roles", "", "JWT roles claim (comma-separated, optional)")
	expires := flag.Duration("expires", time.Hour, "Token lifetime (e.g. 1h)")
	flag.Parse()

	signingSecret := *secret
	if signingSecret == "" {
		signingSecret = os.Getenv("JWT_MINT_SECRET")
	}
	if signingSecret == "" {
		exitErr(fmt.Errorf("a signing secret is required (-secret or JWT_MINT_SECRET)"))
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": *subject,
		"aud": splitList(*audience),
		"iat": now.Unix(),
		"exp": now.Add(*expires).Unix(),
		"nbf": now.Add(-1 * time.Minute).Unix(),
	}
	if *issuer != "" {
		claims["iss"] = *issuer
	}
	if *tenant != "" {
		claims["tenant"] = *tenant
	}
	if *roles != "" {
		claims["roles"] = splitList(*roles)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(signingSecret))
	if err != nil {
		exitErr(err)
	}

	fmt.Println(signed)
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func splitList(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
