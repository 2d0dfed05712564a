package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/nicoplay/nicoplay/internal/client"
	"github.com/nicoplay/nicoplay/internal/player"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	serverURL := flag.String("server", getEnv("NICOPLAY_URL", "http://localhost:8080"), "nicoplay server base URL")
	videoID := flag.String("video", "", "video id to watch; lists videos when empty")
	start := flag.Float64("start", 0, "playback start position in seconds")
	columns := flag.Int("columns", 80, "comment layer width in terminal columns")
	lanes := flag.Int("lanes", 10, "comment layer height in lanes")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.New(*serverURL)

	if *videoID == "" {
		if err := listVideos(ctx, api, os.Stdout); err != nil {
			log.Fatalf("listing videos: %v", err)
		}
		return
	}

	if err := watch(ctx, api, *videoID, *start, newTerminalSurface(os.Stdout, *columns, *lanes), os.Stdin); err != nil {
		log.Fatal(err)
	}
}

func listVideos(ctx context.Context, api *client.Client, out io.Writer) error {
	videos, err := api.ListVideos(ctx)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		fmt.Fprintln(out, "no videos yet")
		return nil
	}
	for _, v := range videos {
		fmt.Fprintf(out, "%s  %-40s  %d comments, %d watching\n", v.ID, v.Title, v.CommentCount, v.Viewers)
	}
	return nil
}

func watch(ctx context.Context, api *client.Client, videoID string, start float64, surface *terminalSurface, in io.Reader) error {
	v, err := api.GetVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("opening video: %w", err)
	}
	fmt.Fprintf(os.Stderr, "watching %q (%s), type a comment and press enter, /quit to stop\n", v.Title, v.ID)

	clock := clockwork.NewRealClock()
	playback := player.NewSimulatedPlayback(clock)
	playback.Seek(start)

	session, err := player.Open(ctx, player.Config{
		VideoID:  v.ID,
		API:      api,
		Live:     api,
		Surface:  surface,
		Playback: playback,
		Clock:    clock,
	})
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	defer session.Close()
	playback.Play()

	go func() {
		for n := range session.Notices() {
			fmt.Fprintf(os.Stderr, "! %s\n", n.Message)
			slog.Debug("session notice", "error", n.Err)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "! %v\n", err)
				continue
			}
			switch cmd.kind {
			case commandQuit:
				return nil
			case commandPause:
				playback.Pause()
			case commandPlay:
				playback.Play()
			case commandSeek:
				playback.Seek(cmd.seek)
			case commandComment:
				postCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if _, err := session.Submit(postCtx, cmd.draft); err != nil {
					fmt.Fprintf(os.Stderr, "! comment not sent: %v\n", err)
				}
				cancel()
			}
		}
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
