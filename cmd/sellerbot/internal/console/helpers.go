package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal"
	"github.com/tinyland-inc/sellerbot/pkg/app"
	"github.com/tinyland-inc/sellerbot/pkg/bus"
	"github.com/tinyland-inc/sellerbot/pkg/channels"
	"github.com/tinyland-inc/sellerbot/pkg/config"
	"github.com/tinyland-inc/sellerbot/pkg/logger"
)

func consoleCmd(configPath string, userID int64, debug bool) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// Logs would interleave with the replies.
	cfg.LogLevel = "warn"
	if debug {
		cfg.LogLevel = "debug"
		fmt.Println("🔍 Debug mode enabled")
	}
	userID, admin := actingUser(cfg, userID)
	if !admin {
		fmt.Printf("⚠️  User %d is not on the allow-list, replies will be access denials\n", userID)
	}

	mb := bus.NewMessageBus()
	defer mb.Close()

	coordinator := app.NewCoordinator(func() (*config.Config, error) { return cfg, nil }, app.Options{
		Channel: channels.NewBusChannel(mb),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(coordinator, mb, userID, os.Stdout)
	go c.Serve(ctx)

	fmt.Printf("%s Console as user %d (Ctrl+C to exit)\n\n", internal.Logo, userID)
	interactiveMode(ctx, c)

	if err := coordinator.Shutdown(context.Background()); err != nil {
		logger.WarnCF("console", "Shutdown failed", map[string]any{"error": err})
	}
	return nil
}

// actingUser resolves the console user, defaulting to the first admin, and
// reports whether that user is allowed.
func actingUser(cfg *config.Config, userID int64) (int64, bool) {
	if userID == 0 && len(cfg.Telegram.AdminIDs) > 0 {
		userID = cfg.Telegram.AdminIDs[0]
	}
	return userID, cfg.IsAdmin(userID)
}

func interactiveMode(ctx context.Context, c *Console) {
	prompt := fmt.Sprintf("%s You: ", internal.Logo)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".sellerbot_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctx, c, os.Stdin)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		if !handleLine(ctx, c, line) {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, c *Console, in io.Reader) {
	reader := bufio.NewReader(in)
	for {
		fmt.Printf("%s You: ", internal.Logo)
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		if !handleLine(ctx, c, line) {
			return
		}
	}
}

// handleLine submits one line and reports whether to keep reading.
func handleLine(ctx context.Context, c *Console, line string) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return true
	case "exit", "quit":
		fmt.Println("Goodbye!")
		return false
	}

	if err := c.Submit(ctx, input); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	fmt.Println()
	return true
}
