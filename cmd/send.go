package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/beacon/internal/models"
)

var (
	sendSourceApp string
	sendEventType string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Forward an agent hook event to the server",
	Long: `Read a hook payload from stdin and forward it to the beacon server.

Designed to run from agent lifecycle hooks:

  beacon send --source-app claude-code --event-type PreToolUse

The hook payload is mapped to a beacon event based on --event-type.
Failures are reported on stderr but never produce a non-zero exit, so a
down collector never blocks the agent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendRun(cmd.InOrStdin())
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendSourceApp, "source-app", "", "Source application name (required)")
	sendCmd.Flags().StringVar(&sendEventType, "event-type", "", "Hook event type, e.g. PreToolUse (required)")
	_ = sendCmd.MarkFlagRequired("source-app")
	_ = sendCmd.MarkFlagRequired("event-type")
	rootCmd.AddCommand(sendCmd)
}

func sendRun(stdin io.Reader) error {
	var hook map[string]any
	if err := json.NewDecoder(stdin).Decode(&hook); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse hook input: %v\n", err)
		return nil
	}

	event := hookToEvent(hook, sendSourceApp, sendEventType)
	if err := postEvent(event); err != nil {
		fmt.Fprintf(os.Stderr, "failed to send event: %v\n", err)
	}

	// Always succeed so a down collector never blocks the agent.
	return nil
}

// projectDir resolves the directory of the project the agent is working in.
func projectDir() string {
	if dir := os.Getenv("CLAUDE_PROJECT_DIR"); dir != "" {
		return dir
	}
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return dir
}

// hookToEvent maps a raw hook payload to an ingest event. Each hook type
// contributes a different subset of name, span id, payloads, and metadata.
func hookToEvent(hook map[string]any, sourceApp, eventType string) *models.EventCreate {
	event := &models.EventCreate{
		SessionID:  str(hook, "session_id"),
		ProjectDir: projectDir(),
		SourceApp:  sourceApp,
		EventType:  eventType,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      models.LevelDefault,
	}
	if event.SessionID == "" {
		event.SessionID = "unknown"
	}

	switch eventType {
	case models.EventSessionStart:
		event.Name = "session:" + str(hook, "source")
		event.Metadata = rawJSON(map[string]any{
			"source":     str(hook, "source"),
			"agent_type": str(hook, "agent_type"),
			"model":      str(hook, "model"),
		})

	case models.EventSessionEnd:
		event.Metadata = rawJSON(map[string]any{
			"reason": str(hook, "reason"),
		})

	case models.EventPreToolUse:
		event.Name = str(hook, "tool_name")
		if event.Name == "" {
			event.Name = "unknown"
		}
		event.SpanID = str(hook, "tool_use_id")
		event.Input = rawJSON(hook["tool_input"])

	case models.EventPostToolUse:
		event.SpanID = str(hook, "tool_use_id")
		event.Output = rawJSON(hook["tool_response"])

	case models.EventPostToolUseFailure:
		event.SpanID = str(hook, "tool_use_id")
		event.Output = rawJSON(hook["tool_response"])
		event.Level = "ERROR"
		errMsg := str(hook, "error")
		if errMsg == "" {
			errMsg = "Tool use failed"
		}
		event.Metadata = rawJSON(map[string]any{"error": errMsg})

	case models.EventSubagentStart:
		agentType := str(hook, "agent_type")
		event.Name = "subagent"
		if agentType != "" {
			event.Name = "subagent:" + agentType
		}
		event.SpanID = str(hook, "agent_id")
		event.Metadata = rawJSON(map[string]any{"agent_type": agentType})

	case models.EventSubagentStop:
		event.SpanID = str(hook, "agent_id")
		event.Metadata = rawJSON(map[string]any{
			"agent_type":       str(hook, "agent_type"),
			"stop_hook_active": hook["stop_hook_active"] == true,
		})

	case models.EventUserPromptSubmit:
		event.Input = rawJSON(map[string]any{"prompt": str(hook, "prompt")})

	case models.EventNotification:
		event.Name = str(hook, "title")
		event.Metadata = rawJSON(map[string]any{
			"notification_type": str(hook, "notification_type"),
			"message":           str(hook, "message"),
			"title":             str(hook, "title"),
		})

	case models.EventPermissionRequest:
		event.Name = str(hook, "tool_name")
		event.Input = rawJSON(hook["tool_input"])
		event.Metadata = rawJSON(map[string]any{
			"permission_suggestions": str(hook, "permission_suggestions"),
		})

	case models.EventStop:
		event.Metadata = rawJSON(map[string]any{
			"stop_hook_active": hook["stop_hook_active"] == true,
		})

	case models.EventPreCompact:
		event.Metadata = rawJSON(map[string]any{
			"trigger":             str(hook, "trigger"),
			"custom_instructions": str(hook, "custom_instructions"),
		})

	default:
		// Unknown hook type: keep the whole payload as input.
		event.Input = rawJSON(hook)
	}

	return event
}

func postEvent(event *models.EventCreate) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	url := viper.GetString("server_url") + "/api/events"
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

// str extracts a string field from a loosely typed hook payload.
func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// rawJSON marshals an arbitrary value to a RawMessage, or nil when absent.
func rawJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
