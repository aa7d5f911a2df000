// Package main provides the user CLI entry point for testing.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/muser/internal/api/httpapi"
)

var (
	app    = kingpin.New("muser-usercli", "muser game client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:3000").String()

	// next command
	nextCmd  = app.Command("next", "Draw a free-play track")
	nextPool = nextCmd.Arg("pool", "\"main\" or a genre name").Default("main").String()

	// artist command
	artistCmd  = app.Command("artist", "Draw a track from an artist's top tracks")
	artistName = artistCmd.Arg("name", "Artist name").Required().Strings()

	// daily command
	dailyCmd     = app.Command("daily", "Show today's challenge")
	dailyContext = dailyCmd.Arg("context", "\"main\" or a genre name").Default("main").String()

	// guess command
	guessCmd   = app.Command("guess", "Guess a track title")
	guessTrack = guessCmd.Arg("track-id", "Track ID").Required().Int64()
	guessText  = guessCmd.Arg("guess", "Your guess").Required().Strings()

	// validate command
	validateCmd    = app.Command("validate", "Check that a song exists for an artist")
	validateArtist = validateCmd.Arg("artist", "Artist name").Required().String()
	validateSong   = validateCmd.Arg("song", "Song title").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := httpapi.NewClient(*server, "")
	ctx := context.Background()

	switch command {
	case nextCmd.FullCommand():
		t, err := client.NextTrack(ctx, *nextPool, "")
		exitOnError(err)
		printRound(t)
	case artistCmd.FullCommand():
		t, err := client.NextTrack(ctx, "artist", strings.Join(*artistName, " "))
		exitOnError(err)
		printRound(t)
	case dailyCmd.FullCommand():
		t, err := client.Daily(ctx, *dailyContext)
		exitOnError(err)
		printRound(t)
	case guessCmd.FullCommand():
		res, err := client.Guess(ctx, *guessTrack, strings.Join(*guessText, " "))
		exitOnError(err)
		if res.Correct {
			fmt.Println("Correct!")
		} else {
			fmt.Println("Wrong.")
		}
		fmt.Printf("  title=%v artist=%v album=%v score=%.2f\n", res.Title, res.Artist, res.Album, res.Score)
	case validateCmd.FullCommand():
		ok, err := client.Validate(ctx, *validateArtist, *validateSong)
		exitOnError(err)
		fmt.Printf("Match: %v\n", ok)
	}
}

// printRound prints a round without revealing the answer.
func printRound(t *httpapi.TrackBody) {
	fmt.Printf("Track ID: %d\n", t.ID)
	fmt.Printf("Preview: %s\n", t.Preview)
	fmt.Printf("Album cover: %s\n", t.Album.Cover)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
