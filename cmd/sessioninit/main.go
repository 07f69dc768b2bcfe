// Command sessioninit performs the interactive Telegram login and writes the
// session file the server uses in user mode. Run it once per account:
//
//	TG_API_ID=... TG_API_HASH=... go run ./cmd/sessioninit -out ./data/tg.session
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"
)

func main() {
	out := flag.String("out", "./data/tg.session", "path of the session file to write")
	flag.Parse()

	apiID, err := strconv.Atoi(os.Getenv("TG_API_ID"))
	if err != nil || apiID == 0 {
		fmt.Fprintln(os.Stderr, "TG_API_ID must be set to your integer api_id (from my.telegram.org)")
		os.Exit(1)
	}
	apiHash := os.Getenv("TG_API_HASH")
	if apiHash == "" {
		fmt.Fprintln(os.Stderr, "TG_API_HASH must be set (from my.telegram.org)")
		os.Exit(1)
	}

	client := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: *out},
	})

	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(terminalAuth{}, auth.SendCodeOptions{})
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return err
		}
		me, err := client.Self(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\nLogged in as %s (id %d).\n", displayName(me), me.ID)
		fmt.Printf("Session written to %s — set TG_SESSION_FILE to this path and keep it secret.\n", *out)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "login failed:", err)
		os.Exit(1)
	}
}

func displayName(u *tg.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// terminalAuth prompts for the phone, login code, and 2FA password on the
// terminal. The password is read without echo.
type terminalAuth struct{}

func (terminalAuth) Phone(ctx context.Context) (string, error) {
	return prompt("Phone number (international format): ")
}

func (terminalAuth) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return prompt("Code sent by Telegram: ")
}

func (terminalAuth) Password(ctx context.Context) (string, error) {
	fmt.Print("2FA password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (terminalAuth) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return nil
}

func (terminalAuth) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("this tool only logs into existing accounts")
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
