package history

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/driftfm/driftfm/pkg/history"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string

	Limit  int
	Format string
}

// Run lists recent plays from the history store, as text or CSV.
func Run(ctx context.Context, cfg *Config) error {
	store, err := history.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("history: couldn't create store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("history: couldn't start store: %w", err)
	}

	plays, err := store.ListPlays(ctx, cfg.Limit)
	if err != nil {
		return err
	}

	switch cfg.Format {
	case "", "text":
		for _, p := range plays {
			mark := " "
			if p.Skipped {
				mark = "x"
			}
			fmt.Printf("%s [%s] %s - %s (%s)\n",
				p.CreatedAt.Format("2006-01-02 15:04"), mark, p.Artist, p.Title, p.Album)
		}
		return nil
	case "csv":
		rows := make([]*playRow, 0, len(plays))
		for _, p := range plays {
			rows = append(rows, &playRow{
				PlayedAt: p.CreatedAt,
				Title:    p.Title,
				Artist:   p.Artist,
				Album:    p.Album,
				Mood:     p.Mood,
				Skipped:  p.Skipped,
			})
		}
		if err := gocsv.Marshal(rows, os.Stdout); err != nil {
			return fmt.Errorf("history: couldn't write csv: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("history: unknown format: %s", cfg.Format)
	}
}

type playRow struct {
	PlayedAt time.Time `csv:"played_at"`
	Title    string    `csv:"title"`
	Artist   string    `csv:"artist"`
	Album    string    `csv:"album"`
	Mood     string    `csv:"mood"`
	Skipped  bool      `csv:"skipped"`
}
