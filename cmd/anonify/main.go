package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/anonify/anonify/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
	Username    string `json:"username,omitempty"`
}

var buildVersion = "dev"

const defaultAPIBase = "http://localhost:4000"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "signup":
		err = commandSignUp(args)
	case "verify":
		err = commandVerify(args)
	case "login":
		err = commandLogin(args)
	case "logout":
		err = commandLogout()
	case "inbox":
		err = commandInbox(args)
	case "accept":
		err = commandAccept(args)
	case "send":
		err = commandSend(args)
	case "suggest":
		err = commandSuggest(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandSignUp(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	username := fs.String("username", "", "Username")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBase+")")
	fs.Parse(args)

	if strings.TrimSpace(*username) == "" || strings.TrimSpace(*email) == "" {
		return errors.New("--username and --email are required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}
	cfg, client, err := clientFor(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pending, err := client.SignUp(ctx, *username, *email, secret)
	if err != nil {
		return err
	}
	cfg.Username = pending.Username
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("%s\ncode expires at %s; run 'anonify verify --code <code>'\n", pending.Message, pending.ExpiresAt.Local().Format(time.Kitchen))
	return nil
}

func commandVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	username := fs.String("username", "", "Username (defaults to the last sign-up)")
	code := fs.String("code", "", "Six digit verification code")
	resend := fs.String("resend", "", "Email address to send a fresh code to instead")
	fs.Parse(args)

	cfg, client, err := clientFor("")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if strings.TrimSpace(*resend) != "" {
		pending, err := client.ResendCode(ctx, *resend)
		if err != nil {
			return err
		}
		fmt.Printf("new code sent to %s for %s\n", *resend, pending.Username)
		return nil
	}
	name := strings.TrimSpace(*username)
	if name == "" {
		name = cfg.Username
	}
	if name == "" || strings.TrimSpace(*code) == "" {
		return errors.New("--username and --code are required")
	}
	if err := client.Verify(ctx, name, strings.TrimSpace(*code)); err != nil {
		return err
	}
	fmt.Println("account verified; run 'anonify login'")
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	identifier := fs.String("user", "", "Username or email")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBase+")")
	fs.Parse(args)

	if strings.TrimSpace(*identifier) == "" {
		return errors.New("--user is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}
	cfg, client, err := clientFor(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	session, err := client.SignIn(ctx, *identifier, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = session.Token
	cfg.Username = session.Account.Username
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("signed in as %s\n", session.Account.Username)
	return nil
}

func commandLogout() error {
	cfg, client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.SignOut(ctx, token); err != nil {
		var apiErr apiclient.APIError
		if !errors.As(err, &apiErr) {
			return err
		}
	}
	cfg.AccessToken = ""
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("signed out")
	return nil
}

func commandInbox(args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}
	_, client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch sub {
	case "list":
		fs := flag.NewFlagSet("inbox list", flag.ExitOnError)
		limit := fs.Int("limit", 0, "Maximum number of messages to display")
		fs.Parse(args)
		messages, err := client.ListMessages(ctx, token)
		if err != nil {
			return err
		}
		count := len(messages)
		if *limit > 0 && *limit < count {
			count = *limit
		}
		for _, m := range messages[:count] {
			fmt.Printf("%s\t%s\t%s\n", m.ID, m.CreatedAt.Local().Format(time.RFC3339), m.Content)
		}
		return nil
	case "delete":
		fs := flag.NewFlagSet("inbox delete", flag.ExitOnError)
		id := fs.String("id", "", "Message identifier")
		fs.Parse(args)
		if strings.TrimSpace(*id) == "" {
			return errors.New("--id is required")
		}
		if err := client.DeleteMessage(ctx, token, *id); err != nil {
			return err
		}
		fmt.Println("message deleted")
		return nil
	default:
		return fmt.Errorf("unknown inbox command: %s", sub)
	}
}

func commandAccept(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: anonify accept [on|off|status]")
	}
	_, client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var accepting bool
	switch args[0] {
	case "on":
		accepting, err = client.SetAccepting(ctx, token, true)
	case "off":
		accepting, err = client.SetAccepting(ctx, token, false)
	case "status":
		accepting, err = client.Accepting(ctx, token)
	default:
		return fmt.Errorf("unknown accept command: %s", args[0])
	}
	if err != nil {
		return err
	}
	if accepting {
		fmt.Println("accepting messages")
	} else {
		fmt.Println("not accepting messages")
	}
	return nil
}

func commandSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	to := fs.String("to", "", "Recipient username")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	content := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if strings.TrimSpace(*to) == "" || content == "" {
		return errors.New("usage: anonify send --to <username> <message>")
	}
	_, client, err := clientFor(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.SendMessage(ctx, *to, content); err != nil {
		return err
	}
	fmt.Println("message sent")
	return nil
}

func commandSuggest(args []string) error {
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return errors.New("usage: anonify suggest <message>")
	}
	_, client, err := clientFor("")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	suggestions, err := client.Suggest(ctx, message)
	if err != nil {
		return err
	}
	for i, s := range suggestions {
		fmt.Printf("%d. %s\n", i+1, s)
	}
	return nil
}

func readSecret(flagValue string) (string, error) {
	secret := strings.TrimSpace(flagValue)
	if secret != "" {
		return secret, nil
	}
	fmt.Print("Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func clientFor(apiBase string) (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(apiBase) != "" {
		cfg.APIBaseURL = apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func authedClient() (cliConfig, *apiclient.Client, string, error) {
	cfg, client, err := clientFor("")
	if err != nil {
		return cliConfig{}, nil, "", err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return cliConfig{}, nil, "", errors.New("please login first using 'anonify login'")
	}
	return cfg, client, token, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "anonify", "config.json"), nil
}

func printUsage() {
	fmt.Printf("anonify CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	anonify signup --username <name> --email user@example.com [--password secret] [--api http://localhost:4000]
	anonify verify --code 123456 [--username <name>]
	anonify verify --resend user@example.com
	anonify login --user <username|email> [--password secret]
	anonify logout
	anonify inbox [list] [--limit N]
	anonify inbox delete --id <message-id>
	anonify accept on|off|status
	anonify send --to <username> <message>
	anonify suggest <message>
	anonify version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
