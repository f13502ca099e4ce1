package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
)

// newCLIApp creates the control client with all commands. Output goes to w.
func newCLIApp(w io.Writer) *cli.App {
	app := &cli.App{
		Name:    "glassctl",
		Usage:   "Control a running glass-bridge",
		Version: Version,
		Writer:  w,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Value: "http://localhost:8080", EnvVars: []string{"GLASS_ADDR"}, Usage: "Bridge base URL"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, EnvVars: []string{"AUTH_PASSWORD"}, Usage: "Control surface password"},
		},
		Commands: []*cli.Command{
			healthCmd(),
			statsCmd(),
			eventsCmd(),
			clearCmd(),
			sessionsCmd(),
			sessionCmd(),
			simpleSessionCmd("pause", "Pause a session"),
			simpleSessionCmd("resume", "Resume a paused session"),
			simpleSessionCmd("next", "Show the next page"),
			simpleSessionCmd("prev", "Show the previous page"),
			personaCmd(),
			durationCmd(),
			autoAdvanceCmd(),
			displayCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func clientFrom(c *cli.Context) *client {
	return newClient(c.String("addr"), c.String("password"))
}

// sessionArg returns the required positional session id.
func sessionArg(c *cli.Context) (string, error) {
	if c.NArg() < 1 || c.Args().First() == "" {
		return "", cli.Exit("session id is required", 1)
	}
	return c.Args().First(), nil
}

// call performs a request and prints the JSON reply.
func call(c *cli.Context, method, path string, query url.Values, body any) error {
	var out json.RawMessage
	if err := clientFrom(c).do(c.Context, method, path, query, body, &out); err != nil {
		return outputError(err)
	}
	return outputJSON(c.App.Writer, out)
}

func healthCmd() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Show bridge health",
		Action: func(c *cli.Context) error {
			return call(c, http.MethodGet, "/health", nil, nil)
		},
	}
}

func statsCmd() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show event log and session counters",
		Action: func(c *cli.Context) error {
			return call(c, http.MethodGet, "/stats", nil, nil)
		},
	}
}

type pollResult struct {
	Events    []json.RawMessage `json:"events"`
	NextIndex int64             `json:"next_index"`
	Count     int               `json:"count"`
}

// eventsCmd polls the event log. With --follow it keeps polling from the
// returned next index and prints one event per line.
func eventsCmd() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Poll the event log",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "since", Aliases: []string{"s"}, Usage: "Return events with index >= since"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum events per poll (0 = server default)"},
			&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}, Usage: "Keep polling for new events"},
			&cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "Poll interval with --follow"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("follow") {
				return call(c, http.MethodGet, "/events", eventsQuery(c.Int64("since"), c.Int("limit")), nil)
			}
			if c.Duration("interval") <= 0 {
				return outputError(errors.New("interval must be positive"))
			}
			cl := clientFrom(c)
			since := c.Int64("since")
			ticker := time.NewTicker(c.Duration("interval"))
			defer ticker.Stop()
			for {
				var res pollResult
				if err := cl.do(c.Context, http.MethodGet, "/events", eventsQuery(since, c.Int("limit")), nil, &res); err != nil {
					if c.Context.Err() != nil {
						return nil
					}
					return outputError(err)
				}
				for _, ev := range res.Events {
					fmt.Fprintln(c.App.Writer, string(ev))
				}
				since = res.NextIndex
				select {
				case <-c.Context.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}

func eventsQuery(since int64, limit int) url.Values {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func clearCmd() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Clear the event log",
		Action: func(c *cli.Context) error {
			return call(c, http.MethodDelete, "/events", nil, nil)
		},
	}
}

func sessionsCmd() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List live sessions",
		Action: func(c *cli.Context) error {
			return call(c, http.MethodGet, "/sessions", nil, nil)
		},
	}
}

func sessionCmd() *cli.Command {
	return &cli.Command{
		Name:      "session",
		Usage:     "Show one session and its recent events",
		ArgsUsage: "<session-id>",
		Action: func(c *cli.Context) error {
			id, err := sessionArg(c)
			if err != nil {
				return err
			}
			return call(c, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, nil)
		},
	}
}

// simpleSessionCmd builds a body-less POST /sessions/:id/<name> command.
func simpleSessionCmd(name, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<session-id>",
		Action: func(c *cli.Context) error {
			id, err := sessionArg(c)
			if err != nil {
				return err
			}
			return call(c, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/"+name, nil, nil)
		},
	}
}

func personaCmd() *cli.Command {
	return &cli.Command{
		Name:      "persona",
		Usage:     "Switch a session's persona",
		ArgsUsage: "<session-id> <persona>",
		Action: func(c *cli.Context) error {
			id, err := sessionArg(c)
			if err != nil {
				return err
			}
			persona := c.Args().Get(1)
			if persona == "" {
				return cli.Exit("persona is required", 1)
			}
			return call(c, http.MethodPut, "/sessions/"+url.PathEscape(id)+"/persona", nil, map[string]any{"persona": persona})
		},
	}
}

func durationCmd() *cli.Command {
	return &cli.Command{
		Name:        "duration",
		Usage:       "Set the per-page display duration",
		ArgsUsage:   "<session-id> <duration>",
		Description: "duration accepts milliseconds (\"3000\") or a Go duration (\"3s\")",
		Action: func(c *cli.Context) error {
			id, err := sessionArg(c)
			if err != nil {
				return err
			}
			ms, err := parseMillis(c.Args().Get(1))
			if err != nil {
				return outputError(err)
			}
			return call(c, http.MethodPut, "/sessions/"+url.PathEscape(id)+"/display-duration", nil, map[string]any{"duration_ms": ms})
		},
	}
}

func autoAdvanceCmd() *cli.Command {
	return &cli.Command{
		Name:      "auto-advance",
		Usage:     "Turn automatic paging on or off",
		ArgsUsage: "<session-id> <on|off>",
		Action: func(c *cli.Context) error {
			id, err := sessionArg(c)
			if err != nil {
				return err
			}
			enabled, err := parseToggle(c.Args().Get(1))
			if err != nil {
				return outputError(err)
			}
			return call(c, http.MethodPut, "/sessions/"+url.PathEscape(id)+"/auto-advance", nil, map[string]any{"enabled": enabled})
		},
	}
}

func displayCmd() *cli.Command {
	return &cli.Command{
		Name:      "display",
		Usage:     "Show text on one session, or on every session",
		ArgsUsage: "<text>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Target session (default: all)"},
			&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Value: 5 * time.Second, Usage: "How long to show the text"},
		},
		Action: func(c *cli.Context) error {
			text := c.Args().First()
			if text == "" {
				return cli.Exit("text is required", 1)
			}
			body := map[string]any{
				"text":     text,
				"duration": c.Duration("duration").Milliseconds(),
			}
			if s := c.String("session"); s != "" {
				body["session_id"] = s
			}
			return call(c, http.MethodPost, "/display", nil, body)
		},
	}
}

// parseMillis accepts a bare millisecond count or a Go duration string.
func parseMillis(s string) (int, error) {
	if s == "" {
		return 0, errors.New("duration is required")
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return ms, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return int(d.Milliseconds()), nil
}

func parseToggle(s string) (bool, error) {
	switch s {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v json.RawMessage) error {
	if len(v) == 0 {
		return nil
	}
	var pretty any
	if err := json.Unmarshal(v, &pretty); err != nil {
		_, err = w.Write(append(v, '\n'))
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}

// outputError formats err for the CLI.
func outputError(err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return cli.Exit(apiErr.Error(), 1)
	}
	return cli.Exit(err.Error(), 1)
}
