// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/muser/internal/api/httpapi"
)

var (
	app    = kingpin.New("muser-admincli", "muser admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:3000").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	// rotate command
	rotateCmd = app.Command("rotate", "Rotate every daily challenge now")

	// daily command
	dailyCmd     = app.Command("daily", "Show the current daily challenge")
	dailyContext = dailyCmd.Arg("context", "\"main\" or a genre name").Default("main").String()

	// genres command
	genresCmd = app.Command("genres", "List configured genres")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := httpapi.NewClient(*server, *token)
	ctx := context.Background()

	switch command {
	case rotateCmd.FullCommand():
		if *token == "" {
			fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
			os.Exit(1)
		}
		rotate(ctx, client)
	case dailyCmd.FullCommand():
		daily(ctx, client, *dailyContext)
	case genresCmd.FullCommand():
		genres(ctx, client)
	}
}

func rotate(ctx context.Context, client *httpapi.Client) {
	resp, err := client.Rotate(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== ROTATION %s (%d ms) ===\n", resp.StartedAt.Format("2006-01-02 15:04:05 MST"), resp.DurationMS)
	for _, r := range resp.Results {
		line := fmt.Sprintf("  %-24s %s", r.Context, r.Outcome)
		if r.TrackID != nil {
			line += fmt.Sprintf(" track=%d", *r.TrackID)
		}
		if r.ErrorKind != "" {
			line += " error=" + r.ErrorKind
		}
		fmt.Println(line)
	}
	fmt.Println()

	if !resp.OK {
		os.Exit(2)
	}
}

func daily(ctx context.Context, client *httpapi.Client, name string) {
	t, err := client.Daily(ctx, name)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printTrack(t)
}

func genres(ctx context.Context, client *httpapi.Client) {
	names, err := client.Genres(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Genres (%d):\n", len(names))
	for _, n := range names {
		fmt.Printf("  %s\n", n)
	}
}

func printTrack(t *httpapi.TrackBody) {
	fmt.Printf("  Track ID: %d\n", t.ID)
	fmt.Printf("  Title: %s\n", t.Title)
	fmt.Printf("  Artist: %s\n", t.Artist.Name)
	fmt.Printf("  Album: %s\n", t.Album.Title)
	fmt.Printf("  Preview: %s\n", t.Preview)
}
