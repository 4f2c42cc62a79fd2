// Package passplay runs a single-device round of the impostor game on a
// terminal. Players take turns viewing their role privately and pass the
// device along.
package passplay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/impostor/internal/game/player"
	"github.com/cory-johannsen/impostor/internal/game/random"
	"github.com/cory-johannsen/impostor/internal/game/room"
)

const (
	// MinPlayers is the smallest table the terminal game accepts.
	MinPlayers = room.MinMembers
	// MaxPlayers is the largest table the terminal game accepts.
	MaxPlayers = 10

	// screenClear scrolls previous output out of view between turns.
	screenClear = 20
)

// ErrInputClosed is returned when input ends before the players quit.
var ErrInputClosed = errors.New("input closed")

// Choice is a menu selection after roles are distributed.
type Choice string

const (
	ChoiceResults Choice = "results"
	ChoiceNew     Choice = "new"
	ChoiceQuit    Choice = "quit"
)

// Game is one terminal session. It reuses the networked room model with an
// empty host seat.
type Game struct {
	in     *bufio.Scanner
	out    io.Writer
	topics []string
	src    random.Source
	logger *zap.Logger

	room *room.Room
}

// New creates a Game reading from in and writing to out.
//
// Precondition: topics must be non-empty; src and logger must be non-nil.
func New(in io.Reader, out io.Writer, topics []string, src random.Source, logger *zap.Logger) *Game {
	return &Game{
		in:     bufio.NewScanner(in),
		out:    out,
		topics: topics,
		src:    src,
		logger: logger,
	}
}

// Run plays rounds until the players quit.
//
// Postcondition: Returns nil on quit, ErrInputClosed if input ends first.
func (g *Game) Run() error {
	if err := g.setup(); err != nil {
		return err
	}
	for {
		if err := g.room.NewRound(g.topics, g.src); err != nil {
			return fmt.Errorf("starting round: %w", err)
		}
		g.logger.Debug("round started", zap.Int("players", g.room.MemberCount()))

		if err := g.distribute(); err != nil {
			return err
		}

		next, err := g.afterRound()
		if err != nil {
			return err
		}
		if next == ChoiceQuit {
			g.printf("\nThanks for playing Impostor!\n")
			return nil
		}
	}
}

// Room exposes the underlying room, for inspection by callers after Run.
func (g *Game) Room() *room.Room { return g.room }

func (g *Game) setup() error {
	g.printf("IMPOSTOR WORD GAME\n%s\n", strings.Repeat("=", 30))

	count, err := g.readCount()
	if err != nil {
		return err
	}

	g.room = room.New("LOCAL", "", time.Now())
	g.printf("\nEnter player names:\n")
	for i := 1; i <= count; i++ {
		raw, err := g.prompt(fmt.Sprintf("Player %d: ", i))
		if err != nil {
			return err
		}
		p := &player.Participant{ID: "p" + strconv.Itoa(i), Name: player.NormalizeName(raw, i)}
		if err := g.room.Add(p); err != nil {
			return fmt.Errorf("adding %s: %w", p.Name, err)
		}
	}

	g.printf("\nGame setup complete! %d players ready.\n", count)
	_, err = g.prompt("Press Enter to start distributing roles...")
	return err
}

func (g *Game) readCount() (int, error) {
	for {
		raw, err := g.prompt(fmt.Sprintf("Enter number of players (%d-%d): ", MinPlayers, MaxPlayers))
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(raw))
		switch {
		case convErr != nil:
			g.printf("Please enter a valid number.\n")
		case n < MinPlayers || n > MaxPlayers:
			g.printf("Please enter a number between %d and %d.\n", MinPlayers, MaxPlayers)
		default:
			return n, nil
		}
	}
}

// distribute shows each player their role in turn.
func (g *Game) distribute() error {
	g.printf("\n%s\nROLE DISTRIBUTION\n%s\n", strings.Repeat("=", 40), strings.Repeat("=", 40))
	g.printf("Each player looks at the screen alone. Everyone else looks away.\n\n")

	for _, p := range g.room.Members() {
		if _, err := g.prompt(fmt.Sprintf("%s, press Enter when you're ready to see your role...", p.Name)); err != nil {
			return err
		}
		g.clear()

		role, err := g.room.Role(p.ID)
		if err != nil {
			return fmt.Errorf("role for %s: %w", p.Name, err)
		}
		g.printf("%s\n  Hello %s!\n", strings.Repeat("=", 30), role.Name)
		if role.IsImpostor {
			g.printf("  YOU ARE THE IMPOSTOR\n  Blend in without knowing the word!\n")
		} else {
			g.printf("  Your word is: %s\n  Find the impostor!\n", strings.ToUpper(role.Topic))
		}
		g.printf("%s\n\n", strings.Repeat("=", 30))

		if _, err := g.prompt("Remember your role, then press Enter and pass the device..."); err != nil {
			return err
		}
		g.room.MarkReady(p.ID)
		g.clear()
	}
	return nil
}

var howToPlay = []string{
	"Players discuss the word without saying it directly",
	"Give hints, ask questions, but be subtle!",
	"The impostor tries to blend in",
	"After discussion, vote for who you think is the impostor",
	"Impostor wins if they're not caught!",
}

// afterRound runs the menu until the players start a new round or quit.
// Results may be shown any number of times.
func (g *Game) afterRound() (Choice, error) {
	g.printf("\nAll %d players have their roles.\n", g.room.ReadyCount())
	for {
		choice, err := g.menu()
		if err != nil {
			return "", err
		}
		if choice != ChoiceResults {
			return choice, nil
		}
		res, err := g.room.Results()
		if err != nil {
			return "", fmt.Errorf("results: %w", err)
		}
		g.printf("\n%s\n", strings.Repeat("=", 40))
		g.printf("The secret word was: %s\n", strings.ToUpper(res.Topic))
		g.printf("The impostor was: %s\n", strings.ToUpper(res.ImpostorName))
		g.printf("%s\n", strings.Repeat("=", 40))
		g.printf("\nHOW TO PLAY:\n")
		for i, step := range howToPlay {
			g.printf("%d. %s\n", i+1, step)
		}
	}
}

func (g *Game) menu() (Choice, error) {
	g.printf("\nType 'results' to see the answer, 'new' for a new round, or 'quit' to exit.\n")
	for {
		raw, err := g.prompt("Your choice: ")
		if err != nil {
			return "", err
		}
		switch c := Choice(strings.ToLower(strings.TrimSpace(raw))); c {
		case ChoiceResults, ChoiceNew, ChoiceQuit:
			return c, nil
		default:
			g.printf("Please enter 'results', 'new', or 'quit'.\n")
		}
	}
}

func (g *Game) prompt(text string) (string, error) {
	g.printf("%s", text)
	if !g.in.Scan() {
		if err := g.in.Err(); err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return "", ErrInputClosed
	}
	return g.in.Text(), nil
}

func (g *Game) clear() {
	g.printf("%s", strings.Repeat("\n", screenClear))
}

func (g *Game) printf(format string, args ...any) {
	fmt.Fprintf(g.out, format, args...)
}
