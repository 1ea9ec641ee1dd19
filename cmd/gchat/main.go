// Package main provides the gchat command line client.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/api"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/auth"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/browser"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/client"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/realtime"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/store"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/wire"
)

func usage() {
	fmt.Println("Usage: gchat <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  spaces              List joined spaces and DMs")
	fmt.Println("  messages <space>    List messages in a conversation")
	fmt.Println("  export <space>      Export a conversation's history as JSON")
	fmt.Println("  watch <space...>    Stream live events for conversations")
	fmt.Println("  serve               Run the local HTTP API server")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "spaces":
		err = runSpaces(os.Args[2:])
	case "messages":
		err = runMessages(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// sessionFlags are the cookie-source and cache options shared by every
// command that talks to the service.
type sessionFlags struct {
	cacheDir     string
	forceRefresh bool
	fromChrome   bool
	cookiesPath  string
}

func (sf *sessionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&sf.cacheDir, "cache-dir", ".", "Directory for cached auth state and cookies")
	fs.BoolVar(&sf.forceRefresh, "force-refresh", false, "Ignore the cached token and re-authenticate")
	fs.BoolVar(&sf.fromChrome, "chrome", false, "Read cookies from the local Chrome profile")
	fs.StringVar(&sf.cookiesPath, "chrome-cookies", "", "Explicit path to a Chrome cookie store")
}

// loadCookies resolves the cookie source: the Chrome profile when
// requested, otherwise the cached cookie file.
func (sf *sessionFlags) loadCookies() (map[string]string, error) {
	if sf.fromChrome || sf.cookiesPath != "" {
		path := sf.cookiesPath
		if path == "" {
			var err error
			path, err = browser.DefaultCookiesPath()
			if err != nil {
				return nil, err
			}
		}
		fmt.Printf("🍪 Reading cookies from %s\n", path)
		cookies, err := browser.NewReader(path).RequiredCookies()
		if err != nil {
			return nil, err
		}
		if err := auth.SaveCachedCookies(sf.cacheDir, cookies); err != nil {
			log.Printf("⚠️  Failed to cache cookies: %v", err)
		}
		return cookies, nil
	}
	return auth.LoadCachedCookies(sf.cacheDir)
}

func (sf *sessionFlags) buildClient(ctx context.Context) (*client.Client, error) {
	cookies, err := sf.loadCookies()
	if err != nil {
		return nil, err
	}
	session, err := auth.NewManager(cookies, &auth.Config{CacheDir: sf.cacheDir})
	if err != nil {
		return nil, err
	}
	if err := session.Authenticate(ctx, sf.forceRefresh); err != nil {
		return nil, err
	}
	return client.NewClient(session, nil), nil
}

// parseInstant accepts either RFC3339 or epoch microseconds.
func parseInstant(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	if micros, err := strconv.ParseInt(value, 10, 64); err == nil {
		return micros, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, fmt.Errorf("invalid instant %q (want RFC3339 or epoch microseconds)", value)
	}
	return t.UnixMicro(), nil
}

func runSpaces(args []string) error {
	fs := flag.NewFlagSet("spaces", flag.ExitOnError)
	var sf sessionFlags
	sf.register(fs)
	pageSize := fs.Int("page-size", 100, "Listing page size")
	fs.Parse(args)

	ctx := context.Background()
	c, err := sf.buildClient(ctx)
	if err != nil {
		return err
	}

	conversations, err := c.ListConversations(ctx, *pageSize)
	if err != nil {
		return err
	}
	fmt.Printf("💬 %d conversations\n", len(conversations))
	for _, conversation := range conversations {
		icon := "🏠"
		if conversation.Kind == wire.KindDM {
			icon = "👤"
		}
		fmt.Printf("  %s %s  %s\n", icon, conversation.ID, conversation.Name)
	}
	return nil
}

func runMessages(args []string) error {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	var sf sessionFlags
	sf.register(fs)
	kind := fs.String("kind", wire.KindSpace, "Conversation kind: space or dm")
	pageSize := fs.Int("page-size", 30, "Topics per page")
	since := fs.String("since", "", "Oldest instant of interest")
	until := fs.String("until", "", "Newest instant of interest")
	maxPages := fs.Int("max-pages", 0, "Page cap, 0 for unbounded")
	noFallback := fs.Bool("no-fallback", false, "Disable the client-side filter fallback")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: gchat messages <conversation-id> [flags]")
	}
	conversationID := fs.Arg(0)

	sinceMicros, err := parseInstant(*since)
	if err != nil {
		return err
	}
	untilMicros, err := parseInstant(*until)
	if err != nil {
		return err
	}

	ctx := context.Background()
	c, err := sf.buildClient(ctx)
	if err != nil {
		return err
	}

	topics, err := c.GetThreads(ctx, conversationID, *kind, client.ThreadQuery{
		PageSize:        *pageSize,
		SinceMicros:     sinceMicros,
		UntilMicros:     untilMicros,
		MaxPages:        *maxPages,
		DisableFallback: *noFallback,
	})
	if err != nil {
		return err
	}

	fmt.Printf("🧵 %d topics\n", len(topics))
	for _, topic := range topics {
		ts := time.UnixMicro(topic.SortTimeMicros).Format(time.RFC3339)
		fmt.Printf("  [%s] %s (%d replies)\n", ts, topic.ID, topic.ReplyCount)
		for _, message := range topic.Replies {
			fmt.Printf("    %s: %s\n", message.Sender.Name, message.Text)
		}
		if topic.MoreReplies {
			fmt.Println("    …")
		}
	}
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var sf sessionFlags
	sf.register(fs)
	kind := fs.String("kind", wire.KindSpace, "Conversation kind: space or dm")
	pageSize := fs.Int("page-size", 100, "Topics per page")
	since := fs.String("since", "", "Oldest instant of interest")
	until := fs.String("until", "", "Newest instant of interest")
	maxPages := fs.Int("max-pages", 0, "Page cap, 0 for unbounded")
	out := fs.String("out", "", "Output file, defaults to stdout")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: gchat export <conversation-id> [flags]")
	}
	conversationID := fs.Arg(0)

	sinceMicros, err := parseInstant(*since)
	if err != nil {
		return err
	}
	untilMicros, err := parseInstant(*until)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := sf.buildClient(ctx)
	if err != nil {
		return err
	}

	output := os.Stdout
	if *out != "" {
		output, err = os.Create(*out)
		if err != nil {
			return err
		}
		defer output.Close()
	}

	encoder := json.NewEncoder(output)
	total := 0
	err = c.ExportChatBatches(ctx, conversationID, *kind, client.ExportOptions{
		PageSize:      *pageSize,
		SinceMicros:   sinceMicros,
		UntilMicros:   untilMicros,
		MaxPages:      *maxPages,
		ExpandReplies: true,
	}, func(batch *client.Batch) error {
		total += len(batch.Messages)
		log.Printf("📦 Page %d: %d topics, %d messages", batch.PageNumber, len(batch.Topics), len(batch.Messages))
		return encoder.Encode(batch)
	})
	if err != nil {
		return err
	}
	log.Printf("✅ Exported %d messages", total)
	return nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var sf sessionFlags
	sf.register(fs)
	kind := fs.String("kind", wire.KindSpace, "Conversation kind: space or dm")
	pingEvery := fs.Duration("ping-interval", 30*time.Second, "Keep-alive ping interval")
	streamURL := fs.String("stream-url", "", "Override the stream endpoint")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: gchat watch <conversation-id...> [flags]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := sf.buildClient(ctx)
	if err != nil {
		return err
	}

	config := realtime.DefaultConfig()
	if *streamURL != "" {
		config.URL = *streamURL
	}
	channel := realtime.NewChannel(c.Session(), config)

	channel.On(realtime.EventMessage, func(e realtime.Event) {
		fmt.Printf("💬 [%s] new message\n", e.Frame.GroupID)
	})
	channel.On(realtime.EventTyping, func(e realtime.Event) {
		fmt.Printf("⌨️  [%s] typing\n", e.Frame.GroupID)
	})
	channel.On(realtime.EventReadReceipt, func(e realtime.Event) {
		fmt.Printf("👁️  [%s] read receipt\n", e.Frame.GroupID)
	})
	channel.On(realtime.EventUserStatus, func(e realtime.Event) {
		fmt.Printf("🟢 [%s] user status\n", e.Frame.GroupID)
	})
	channel.On(realtime.EventError, func(e realtime.Event) {
		log.Printf("⚠️  Stream error: %v", e.Err)
	})

	var conversations []wire.Conversation
	for _, id := range fs.Args() {
		conversations = append(conversations, wire.Conversation{ID: id, Kind: *kind})
	}
	if err := channel.SubscribeToAll(conversations); err != nil {
		return err
	}
	if err := channel.Connect(ctx); err != nil {
		return err
	}
	defer channel.Disconnect()
	fmt.Printf("📡 Watching %d conversations (Ctrl-C to stop)\n", len(conversations))

	// The channel never pings on its own; the watcher owns the cadence.
	ticker := time.NewTicker(*pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\n👋 Stopping watch")
			return nil
		case <-ticker.C:
			if err := channel.SendPing(); err != nil {
				log.Printf("⚠️  Keepalive ping failed: %v", err)
			}
		}
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var sf sessionFlags
	sf.register(fs)
	port := fs.Int("port", 8420, "HTTP API port")
	dbPath := fs.String("db", "gchat.db", "Local state database path")
	cors := fs.Bool("cors", true, "Enable CORS headers")
	rateLimit := fs.Int("rate-limit", 120, "Rate limit (requests per minute)")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := sf.buildClient(ctx)
	if err != nil {
		return err
	}

	localStore, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer localStore.Close()

	config := api.DefaultConfig()
	config.Port = *port
	config.EnableCORS = *cors
	config.RateLimit = *rateLimit
	server := api.NewServer(c, localStore, config)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Printf("⚠️  Shutdown error: %v", err)
		}
	}()

	return server.Start()
}
