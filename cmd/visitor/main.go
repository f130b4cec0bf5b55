package main

import (
	"WidgetCS/entity"
	"WidgetCS/internal/humanchat"
	"WidgetCS/internal/lib/logger"
	"WidgetCS/internal/lib/sl"
	"WidgetCS/internal/realtime"
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

func main() {
	apiURL := flag.String("api", "http://127.0.0.1:9100", "widget backend base url")
	conversation := flag.String("conv", "", "conversation id to escalate")
	userID := flag.String("user", "", "visitor id, random when empty")
	env := flag.String("env", "dev", "log environment")
	flag.Parse()

	lg := logger.SetupLogger(*env, "")
	if *userID == "" {
		*userID = "visitor-" + uuid.New().String()[:8]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsURL := strings.Replace(strings.TrimRight(*apiURL, "/"), "http", "ws", 1) + "/ws/human-chat"
	channel := realtime.New(realtime.Options{
		URL:    wsURL,
		UserID: *userID,
		Role:   entity.SenderTypeUser,
		Log:    lg,
	})
	client := humanchat.NewClient(humanchat.NewHTTPAPI(*apiURL, lg), channel, *userID, 0, lg)

	printer := &transcript{self: *userID, done: make(chan struct{})}
	client.OnUpdate(printer.update)

	session, err := client.Start(ctx, *conversation)
	if err != nil {
		lg.Error("start human chat", sl.Err(err))
		os.Exit(1)
	}
	fmt.Printf("session %s (%s), type a message, /close to leave\n", session.SessionID, session.Status)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			closeSession(client, "visitor_left")
			return
		case <-printer.done:
			return
		case line, ok := <-lines:
			if !ok || line == "/close" {
				closeSession(client, "visitor_left")
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !client.Send(line) {
				fmt.Println("! message not sent, the chat is not connected")
			}
		}
	}
}

func closeSession(client *humanchat.Client, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Close(ctx, reason); err != nil {
		fmt.Println("! close:", err)
	}
}
