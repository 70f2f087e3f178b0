// Command deleteaccount drives the client-side deletion flow against a running service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"promosuite.app/internal/auth"
	"promosuite.app/internal/facade"
	"promosuite.app/internal/obs"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()
	var (
		endpoint = flag.String("endpoint", envOr("PROMOSUITE_API_URL", "http://localhost:8080"), "deletion service base URL")
		userID   = flag.String("user", "", "id of the account to delete")
		email    = flag.String("email", "", "email of the account (used when signing a dev token)")
		provider = flag.String("provider", "email", "auth provider recorded in a dev token")
		token    = flag.String("token", os.Getenv("PROMOSUITE_ACCESS_TOKEN"), "bearer credential")
		secret   = flag.String("sign-with", "", "sign a short-lived dev token with this secret instead of -token")
		session  = flag.String("session", "", "local session file removed on logout")
		summary  = flag.Bool("summary", false, "print what will be deleted and exit")
		yes      = flag.Bool("yes", false, "confirm deletion")
	)
	flag.Parse()

	if *summary {
		printJSON(facade.DataDeletionSummary())
		return
	}
	if err := obs.InitLogger(obs.LogConfig{Level: "warn", Format: "console"}); err != nil {
		log.Fatalf("logger: %v", err)
	}

	if *userID == "" && *secret != "" {
		*userID = uuid.NewString()
	}
	if *secret != "" {
		v, err := auth.NewTokenVerifier(*secret)
		if err != nil {
			log.Fatalf("token signer: %v", err)
		}
		if *token, err = v.Sign(*userID, *email, *provider, 5*time.Minute); err != nil {
			log.Fatalf("sign token: %v", err)
		}
	}
	if !*yes {
		log.Fatal("refusing to delete without -yes")
	}

	redirected := make(chan string, 1)
	f := facade.New(
		facade.NewHTTPDeleter(*endpoint, nil),
		func(path string) { redirected <- path },
		facade.WithLogger(obs.Logger().With(zap.String("component", "deleteaccount"))),
	)
	defer f.Close()

	var user *facade.User
	if *userID != "" {
		user = &facade.User{ID: *userID, Email: *email, AccessToken: *token}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	res := f.DeleteUserAccount(ctx, user, func(context.Context) error {
		return logout(*session)
	})
	printJSON(res)
	if !res.Success {
		os.Exit(1)
	}
	select {
	case p := <-redirected:
		fmt.Fprintf(os.Stderr, "redirect -> %s\n", p)
	case <-time.After(3 * time.Second):
	}
}

func logout(session string) error {
	if session == "" {
		return nil
	}
	if err := os.Remove(session); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
