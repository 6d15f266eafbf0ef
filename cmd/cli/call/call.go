// Package call simulates the agent's side of a fraud-alert call over a line-based terminal conversation.
package call

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/myrjola/fraudalert/cmd/cli/app"
	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/models"
	"github.com/myrjola/fraudalert/internal/verification"
	"github.com/spf13/cobra"
)

const greeting = "Hello, this is the fraud prevention department. " +
	"We're calling about a suspicious transaction on your card. May I have your name?"

var errHangUp = errors.NewSentinel("caller hung up")

var Group = &cobra.Group{
	ID:    "call",
	Title: "Call simulation",
}

var Cmd = &cobra.Command{
	Use:     "call",
	GroupID: "call",
	Short:   "Simulate a fraud-alert call",
	Long: `Plays the agent of a fraud-alert call. Type the customer's replies line by line.
The customer is verified with the security question and the last four card digits
before the transaction can be confirmed or reported as fraud.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := app.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		return Drive(cmd.Context(), a.NewSession(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

type conversation struct {
	lines *bufio.Scanner
	out   io.Writer
}

func (c *conversation) say(message string) {
	_, _ = fmt.Fprintf(c.out, "Agent: %s\n", message)
}

func (c *conversation) listen() (string, error) {
	_, _ = fmt.Fprint(c.out, "You: ")
	if !c.lines.Scan() {
		if err := c.lines.Err(); err != nil {
			return "", errors.Wrap(err, "read reply")
		}
		return "", errHangUp
	}
	return c.lines.Text(), nil
}

// turn repeats step with new replies for as long as the session asks for the input again.
func (c *conversation) turn(ctx context.Context, step func(context.Context, string) (verification.Result, error)) error {
	for {
		reply, err := c.listen()
		if err != nil {
			return err
		}
		r, err := step(ctx, reply)
		c.say(r.Message)
		if errors.Is(err, verification.ErrEmptyInput) ||
			(errors.Is(err, verification.ErrNotFound) && r.State == verification.StateUnauthenticated) {
			continue
		}
		return err
	}
}

// Drive runs one call from greeting to resolution. It returns nil when the call ends normally, including failed
// verification and the caller hanging up, and an error when the case store couldn't record the call.
func Drive(ctx context.Context, s *verification.Session, in io.Reader, out io.Writer) error {
	c := &conversation{lines: bufio.NewScanner(in), out: out}
	c.say(greeting)

	err := c.turn(ctx, s.LoadCase)
	if err == nil {
		err = c.turn(ctx, s.VerifySecurityAnswer)
	}
	if err == nil {
		err = c.turn(ctx, s.VerifyCardDigits)
	}
	if err == nil {
		err = c.turn(ctx, func(ctx context.Context, reply string) (verification.Result, error) {
			d, ok := parseDisposition(reply)
			if !ok {
				return verification.Result{State: s.State(), Message: "Please answer yes or no.", Summary: nil},
					verification.ErrEmptyInput
			}
			return s.Resolve(ctx, d)
		})
	}

	switch {
	case errors.Is(err, errHangUp):
		_, _ = fmt.Fprintln(out, "\nCall ended.")
		return nil
	case errors.Is(err, verification.ErrStoreUnavailable), errors.Is(err, verification.ErrNotFound):
		return errors.Wrap(err, "record call", slog.String("session_id", s.ID()))
	case errors.Is(err, verification.ErrMismatch):
		return nil
	case err != nil:
		return err
	}
	c.say("Thank you for your time. Goodbye.")
	return nil
}

// parseDisposition reads the answer to "did you make the purchase?".
func parseDisposition(reply string) (models.Disposition, bool) {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "y", "yes", "safe":
		return models.DispositionSafe, true
	case "n", "no", "fraud":
		return models.DispositionFraud, true
	default:
		return 0, false
	}
}
