package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/beacon/internal/models"
	"github.com/joescharf/beacon/internal/output"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream live events from the server",
	Long: `Connect to the server's WebSocket stream and print events as they
arrive. Press Ctrl-C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tailRun()
	},
}

func init() {
	rootCmd.AddCommand(tailCmd)
}

// streamURL converts the configured server URL to its WebSocket endpoint.
func streamURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server_url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/stream"
	return u.String(), nil
}

func tailRun() error {
	wsURL, err := streamURL(viper.GetString("server_url"))
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	ui.Info("Streaming events from %s", wsURL)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, shutdownSignals()...)

	events := make(chan *models.Event)
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg struct {
				Type  string        `json:"type"`
				Event *models.Event `json:"event"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			if msg.Type != "new_event" || msg.Event == nil {
				continue
			}
			events <- msg.Event
		}
	}()

	for {
		select {
		case e := <-events:
			if ui.Verbose {
				fmt.Fprintln(ui.Out, eventJSON(e))
			} else {
				fmt.Fprintln(ui.Out, formatEvent(e))
			}
		case err := <-readErr:
			return fmt.Errorf("stream closed: %w", err)
		case <-interrupt:
			// Best-effort close handshake.
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	}
}

// formatEvent renders one event as a single colored line.
func formatEvent(e *models.Event) string {
	var b strings.Builder

	b.WriteString(e.Timestamp)
	b.WriteString("  ")
	b.WriteString(output.EventTypeColor(e.EventType))

	if e.Name != "" {
		b.WriteString("  ")
		b.WriteString(e.Name)
	}
	if e.DurationMs != nil {
		b.WriteString(fmt.Sprintf("  (%dms)", *e.DurationMs))
	}
	if e.Level != "" && e.Level != models.LevelDefault {
		b.WriteString("  ")
		b.WriteString(output.LevelColor(e.Level))
	}

	shortSession := e.SessionID
	if len(shortSession) > 8 {
		shortSession = shortSession[:8]
	}
	b.WriteString(fmt.Sprintf("  [%s %s]", e.ProjectID, shortSession))

	return b.String()
}

// eventJSON is used by verbose mode to dump the full event.
func eventJSON(e *models.Event) string {
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(data)
}
