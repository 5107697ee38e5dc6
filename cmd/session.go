package cmd

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/shoppingmall/mall/internal/client"
	"github.com/shoppingmall/mall/internal/logging"
	"github.com/shoppingmall/mall/internal/session"
	"github.com/shoppingmall/mall/internal/tokenstore"
	"github.com/shoppingmall/mall/pkg/output"
)

var (
	metricsRegistry = prometheus.NewRegistry()
	// sessionMetrics is shared by every session a process opens.
	sessionMetrics = session.NewMetrics(metricsRegistry)
	metricsFile    string
)

// writeMetrics saves the session counters for the node_exporter textfile
// collector when --metrics-file is set.
func writeMetrics() {
	if metricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(metricsFile, metricsRegistry); err != nil {
		output.Warn("Failed to write metrics to %s: %v", metricsFile, err)
	}
}

// cliNavigator turns navigation signals into terminal hints.
type cliNavigator struct{}

func (cliNavigator) Navigate(_ context.Context, to session.Destination) {
	if to == session.DestinationLogin {
		output.Warn("Your session has expired. Run 'mall login' to sign in again.")
	}
}

// openSession builds the session for the selected profile. The returned
// function releases the token store.
func openSession(cmd *cobra.Command) (*session.Session, func(), error) {
	ctx := cmd.Context()
	profile := profileName(cmd)

	store, err := tokenstore.Open(ctx, cfg, profile)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if c, ok := store.(io.Closer); ok {
			c.Close()
		}
	}

	log := logger.With(logging.Profile(profile))
	c := client.New(cfg.BaseURL(profile),
		client.WithTimeout(cfg.HTTP.Timeout),
		client.WithLogger(log),
	)

	s := session.New(c, store,
		session.WithLogger(log),
		session.WithNavigator(cliNavigator{}),
		session.WithMetrics(sessionMetrics),
	)
	return s, release, nil
}

// printResult renders a request result and converts non-OK outcomes into
// command errors.
func printResult(res *session.Result) error {
	switch res.Outcome {
	case session.OutcomeOK:
		return output.RawJSON(res.Body)
	case session.OutcomeValidation:
		output.FieldErrors(res.Fields.Keys(), res.Fields)
	case session.OutcomeRejected:
		output.RawJSON(res.Body)
	}
	return res.Err()
}
