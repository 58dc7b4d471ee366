package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/service"
)

// issue-token mints a signed JWT. Identity is provisioned outside this
// service; operators use this to hand out tokens and to test the API.
func main() {
	var (
		userID       string
		admin        bool
		promptSecret bool
	)
	flag.StringVar(&userID, "user", "", "User id to embed in the token")
	flag.BoolVar(&admin, "admin", false, "Issue an admin token")
	flag.BoolVar(&promptSecret, "prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	interactive := term.IsTerminal(int(syscall.Stdin))

	// ─── CLI Input ─────────────────────────────────────────────────────
	if userID == "" && interactive {
		fmt.Fprint(os.Stderr, "Enter User ID: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		userID = strings.TrimSpace(line)
	}
	if userID == "" {
		fmt.Fprintln(os.Stderr, "Error: a user id is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()

	if promptSecret {
		if !interactive {
			fmt.Fprintln(os.Stderr, "Error: -prompt-secret needs a terminal")
			os.Exit(2)
		}
		fmt.Fprint(os.Stderr, "Enter JWT Secret: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error reading secret")
			os.Exit(1)
		}
		cfg.JWTSecret = string(secret)
	}

	role := service.RoleStudent
	if admin {
		role = service.RoleAdmin
	}

	token, err := service.NewAuthService(cfg).GenerateToken(userID, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Role: %s, expires in %s\n", role, cfg.JWTExpiry)
	fmt.Println(token)
}
