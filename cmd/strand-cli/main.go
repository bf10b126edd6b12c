package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/client"
	"github.com/strand-chat/strand/internal/client/paging"
	"github.com/strand-chat/strand/internal/client/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	var (
		serverURL = flag.String("server", envOr("STRAND_SERVER", "http://localhost:8080/api/v1"), "API base URL")
		wsURL     = flag.String("ws", envOr("STRAND_WS", "ws://localhost:8080/api/v1/ws"), "gateway websocket URL")
		token     = flag.String("token", os.Getenv("STRAND_TOKEN"), "access token")
		channel   = flag.String("channel", "", "channel id")
		userID    = flag.String("user", os.Getenv("STRAND_USER"), "user id, for delete visibility")
		pageSize  = flag.Int("page-size", 50, "history page size")
	)
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("token required (flag -token or STRAND_TOKEN)")
	}
	channelID, err := uuid.Parse(*channel)
	if err != nil {
		return fmt.Errorf("invalid channel id: %w", err)
	}

	viewer := stream.Viewer{}
	if *userID != "" {
		viewer.UserID, err = uuid.Parse(*userID)
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(*serverURL, *token)
	reconciler := stream.NewReconciler(channelID, viewer)
	defer reconciler.Dispose()

	controller := paging.NewController(channelID, c, reconciler, nil, *pageSize)
	defer controller.Dispose()

	if err := controller.LoadInitial(ctx, nil); err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, entry := range reconciler.Entries() {
		printEntry(entry)
	}

	eventCh := make(chan *chat.Event, 64)
	sub := client.NewSubscriber(*wsURL, *token, func(ev *chat.Event) {
		select {
		case eventCh <- ev:
		default:
		}
	}, logger)
	if err := sub.Subscribe(channelID); err != nil {
		return err
	}
	go sub.Run(ctx)

	// The reconciler is single-threaded: bus events and typed input both
	// funnel through this loop.
	inputCh := make(chan string)
	go readInput(ctx, inputCh)

	fmt.Println("connected, type a message and press enter (Ctrl-C to quit)")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-eventCh:
			before := reconciler.Len()
			reconciler.Apply(ev)
			for _, entry := range reconciler.Entries()[before:] {
				printEntry(entry)
			}
		case line := <-inputCh:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			stagedID := uuid.New().String()
			reconciler.Stage(stagedID, line)
			if _, err := c.SendMessage(ctx, channelID, client.SendRequest{
				Content:  line,
				StagedID: stagedID,
			}); err != nil {
				if failure, ok := err.(*client.SendFailure); ok {
					reconciler.MarkSendFailed(stagedID, failure.Reason, failure.Transient)
					fmt.Printf("!! send failed: %s\n", failure.Reason)
				} else {
					return err
				}
			}
		}
	}
}

func readInput(ctx context.Context, out chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

func printEntry(entry *stream.Entry) {
	if entry.Collapsed {
		fmt.Printf("[%d] (deleted)\n", entry.Message.ID)
		return
	}
	marker := ""
	if entry.Staged {
		marker = " (sending)"
	}
	fmt.Printf("[%d] %s: %s%s\n", entry.Message.ID, entry.Message.AuthorID, entry.Message.Content, marker)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
