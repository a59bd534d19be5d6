package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"pocket-chat/contract"
	"pocket-chat/feed"
	"pocket-chat/storage"
)

// Exit codes for the chat application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components and manages the session lifecycle.
// Returning instead of exiting directly guarantees the deferred
// database and subscription cleanups execute on every path.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Login: a display name, blank defaults to anonymous.
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		name = "anonymous"
	}

	// 5. Open the feed session against the local store.
	store := storage.NewBadgerStore(db, log)
	session, err := feed.NewSynchronizer(store, name,
		feed.Options{WindowSize: config.WindowSize, PageSize: config.PageSize}, log)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open feed: %w", err)
	}
	defer session.Close()

	session.OnChange(func() { render(session, name) })

	fmt.Printf(">>> Chatting as %s (/older for history, /quit to leave)\n", name)

	// 6. Input loop. Reading happens in a goroutine so the select can
	// also react to the signal context.
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimRight(line, "\n")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			log.Info("Leaving chat...")
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			switch strings.TrimSpace(line) {
			case "/quit":
				return exitOK, nil
			case "/older":
				if err := session.LoadOlder(); err != nil {
					log.Error("could not load history", "error", err)
				}
			case "":
			default:
				if err := session.Send(line); err != nil {
					// The typed line stays in the terminal scrollback,
					// the user can recall and retry it.
					log.Error("message not sent", "error", err)
				}
			}
		}
	}
}

// render reprints the whole feed; own messages are highlighted the
// way the mobile UI colors its own bubbles.
func render(session contract.IFeed, owner string) {
	messages := session.Messages()
	fmt.Println(strings.Repeat("-", 40))
	for _, m := range messages {
		line := fmt.Sprintf("[%s] %s: %s",
			m.Timestamp.Local().Format("15:04"), m.Sender, m.Content)
		if m.Sender == owner {
			line = color.FgGreen.Render(line)
		}
		fmt.Println(line)
	}
}
