package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if os.Getenv("GAIA_AUTHZ_CLI_DEBUG") != "" {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// client is a thin wrapper over the service's admin API.
type client struct {
	baseURL string
	actor   string
	http    *http.Client
}

func newClient(baseURL, actor string) *client {
	return &client{
		baseURL: baseURL,
		actor:   actor,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// do issues a request and decodes a JSON response into out (when out
// is non-nil). Non-2xx responses are surfaced as errors carrying the
// service's error message.
func (c *client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set("X-Actor-ID", c.actor)
	}
	log.WithFields(logrus.Fields{"method": method, "path": path}).Debug("request")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&errBody) == nil && errBody.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", errBody.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// printJSON writes a value as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// addCommonFlags registers the flags every subcommand shares.
func addCommonFlags(cmd *Command) {
	cmd.Flags.String("server", envOr("GAIA_AUTHZ_SERVER", "http://localhost:8080"), "Authorization service URL")
	cmd.Flags.String("actor", envOr("GAIA_AUTHZ_ACTOR", ""), "Administrator identity recorded in the audit log")
}

func clientFromFlags(cmd *Command) *client {
	return newClient(
		cmd.Flags.Lookup("server").Value.String(),
		cmd.Flags.Lookup("actor").Value.String(),
	)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
