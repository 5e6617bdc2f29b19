// Package seed generates synthetic kiosk sessions and delivers them to a
// running analytics server through the tracking client.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/client"
	entrypoint "github.com/meridianworks/kiosk-analytics/internal/platform/cmd"
)

// Config holds seed command configuration.
type Config struct {
	Endpoint   string `env:"KIOSK_ANALYTICS_SEED_ENDPOINT" envDefault:"http://localhost:4000/analytics/events"`
	AppVersion string `env:"KIOSK_ANALYTICS_SEED_APP_VERSION" envDefault:"1.0.0-seed"`

	Sessions int
	Days     int
	Seed     uint64
	Verbose  bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "ingest endpoint URL")
	fs.IntVar(&cfg.Sessions, "sessions", 25, "number of synthetic sessions to generate")
	fs.IntVar(&cfg.Days, "days", 7, "spread sessions across the trailing N days")
	fs.Uint64Var(&cfg.Seed, "seed", 0, "random seed for reproducibility (0 = random)")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose output")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Fixed kiosk content identifiers so aggregates group into a small,
// recognizable set instead of pure noise.
var (
	stageIDs  = []string{"discover", "design", "build", "launch"}
	domainIDs = []string{"materials", "energy", "mobility", "habitats", "robotics"}
	reasons   = []string{"timeout", "home_button", "staff_reset"}
)

// Run generates and delivers synthetic sessions.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.Sessions <= 0 {
		return fmt.Errorf("sessions must be positive, got %d", cfg.Sessions)
	}
	if cfg.Days <= 0 {
		cfg.Days = 1
	}

	faker := gofakeit.New(cfg.Seed)
	now := time.Now()

	for i := 0; i < cfg.Sessions; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		offset := time.Duration(faker.IntRange(0, cfg.Days*24*60)) * time.Minute
		session := newSessionRun(faker, now.Add(-offset))

		c, err := client.New(client.Config{
			Endpoint:   cfg.Endpoint,
			AppVersion: cfg.AppVersion,
			SessionID:  uuid.NewString(),
			Clock:      session.clock,
		})
		if err != nil {
			return fmt.Errorf("create tracking client: %w", err)
		}

		session.play(c)
		c.Flush(ctx)
		if cfg.Verbose {
			fmt.Fprintf(out, "session %d/%d: %s starting %s\n", i+1, cfg.Sessions, c.SessionID(), session.start.Format(time.RFC3339))
		}
	}

	fmt.Fprintf(out, "seeded %d sessions via %s\n", cfg.Sessions, cfg.Endpoint)
	return nil
}

// sessionRun walks one synthetic visitor through the kiosk, advancing a
// virtual clock so dwell durations and timestamps stay consistent.
type sessionRun struct {
	faker  *gofakeit.Faker
	start  time.Time
	cursor time.Time
}

func newSessionRun(faker *gofakeit.Faker, start time.Time) *sessionRun {
	return &sessionRun{faker: faker, start: start, cursor: start}
}

func (s *sessionRun) clock() time.Time {
	return s.cursor
}

func (s *sessionRun) advance(minMs, maxMs int) int64 {
	ms := int64(s.faker.IntRange(minMs, maxMs))
	s.cursor = s.cursor.Add(time.Duration(ms) * time.Millisecond)
	return ms
}

func (s *sessionRun) play(c *client.Client) {
	if s.faker.IntRange(1, 10) <= 3 {
		c.TrackScreensaverShown()
		s.advance(2000, 30000)
		c.TrackScreensaverExit()
		s.advance(200, 1500)
	}
	c.TrackEnterApp()
	s.advance(500, 3000)

	stages := s.faker.IntRange(1, 3)
	for i := 0; i < stages; i++ {
		stageID := stageIDs[s.faker.IntRange(0, len(stageIDs)-1)]
		c.TrackStageVisit(stageID)
		s.advance(1000, 8000)

		domains := s.faker.IntRange(1, 2)
		for j := 0; j < domains; j++ {
			domainID := domainIDs[s.faker.IntRange(0, len(domainIDs)-1)]
			s.playDomain(c, stageID, domainID)
		}
	}

	c.TrackExitToAttract(reasons[s.faker.IntRange(0, len(reasons)-1)])
}

func (s *sessionRun) playDomain(c *client.Client, stageID, domainID string) {
	c.TrackDomainStart(stageID, domainID)
	domainStart := s.cursor

	projects := s.faker.IntRange(0, 3)
	for p := 0; p < projects; p++ {
		projectID := fmt.Sprintf("%s-project-%d", domainID, s.faker.IntRange(1, 6))
		c.TrackProjectStart(stageID, domainID, projectID, p)
		dwell := s.advance(3000, 45000)
		c.TrackProjectEnd(stageID, domainID, projectID, dwell)
		s.advance(300, 2000)
	}

	if s.faker.Bool() {
		questions := s.faker.IntRange(1, 3)
		for q := 0; q < questions; q++ {
			s.advance(2000, 15000)
			c.TrackQuestionAnswered(client.QuizAnswer{
				StageID:             stageID,
				DomainID:            domainID,
				QuestionID:          fmt.Sprintf("%s-q%d", domainID, s.faker.IntRange(1, 4)),
				Correct:             s.faker.IntRange(1, 10) <= 6,
				SelectedOptionIndex: s.faker.IntRange(0, 3),
				TotalOptions:        4,
			})
		}
	} else {
		s.advance(500, 3000)
		c.TrackQuizSkipped(stageID, domainID)
	}

	s.advance(300, 2000)
	c.TrackDomainEnd(stageID, domainID, s.cursor.Sub(domainStart).Milliseconds(), projects)
}
