package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/weir/internal/orchestrator"
	"github.com/dyluth/weir/internal/printer"
	"github.com/dyluth/weir/internal/store"
	"github.com/dyluth/weir/pkg/entity"
	"github.com/dyluth/weir/pkg/record"
)

var (
	watchAuthors      []string
	watchOutputFormat string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live entity changes",
	Long: `Synchronize projects, conversations, tasks, agent profiles and presence
signals for the configured authors and stream every entity change as it is
merged.

Output Formats:
  default - Human-readable output with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch the authors listed in weir.yml
  weir watch

  # Watch specific authors
  weir watch --author pk1 --author pk2

  # Export changes as JSON
  weir watch --output=json > changes.jsonl`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringArrayVar(&watchAuthors, "author", nil, "Author pubkey to synchronize (repeatable, defaults to weir.yml)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchOutputFormat != "default" && watchOutputFormat != "json" {
		return printer.Error(
			fmt.Sprintf("Invalid output format: %s", watchOutputFormat),
			"The --output flag accepts 'default' or 'json'.",
			nil,
		)
	}

	cfg, client, err := openTransport()
	if err != nil {
		return printer.Error("Cannot start watch", err.Error(), []string{
			"Check that weir.yml exists and names a reachable relay",
		})
	}
	defer client.Close()

	authors := watchAuthors
	if len(authors) == 0 {
		authors = cfg.Sync.Authors
	}
	if len(authors) == 0 {
		return printer.Error(
			"No authors to synchronize",
			"Pass --author or list authors under sync.authors in weir.yml.",
			nil,
		)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st := store.New()
	orch := orchestrator.New(client, st, cfg.Policy())

	watcher := st.Watch()
	defer watcher.Close()

	syncHandle, err := orch.SyncProjects(ctx, authors)
	if err != nil {
		return printer.Error("Subscription failed", err.Error(), []string{
			"Verify the relay endpoint is reachable and retry",
		})
	}
	defer syncHandle.Cancel()

	// Content records attached to the watched authors' activity.
	contentFilter := record.Filter{
		Kinds: []int{
			record.KindConversation,
			record.KindTask,
			record.KindAgentProfile,
			record.KindLesson,
			record.KindLessonComment,
		},
	}
	contentHandle, err := orch.Watch(ctx, contentFilter, func(r *record.Record) {
		orch.Ingest(r)
	})
	if err != nil {
		return printer.Error("Subscription failed", err.Error(), nil)
	}
	defer contentHandle.Cancel()

	if watchOutputFormat == "default" {
		printer.Info("Watching %d author(s) on instance '%s' (Ctrl+C to stop)\n\n", len(authors), cfg.Instance)
	}

	for {
		select {
		case <-ctx.Done():
			if watchOutputFormat == "default" {
				printer.Info("\nStopped.\n")
			}
			return nil

		case change, ok := <-watcher.Changes():
			if !ok {
				return nil
			}
			printChange(change)
		}
	}
}

// printChange renders one merged entity change in the selected format.
func printChange(change store.Change) {
	if watchOutputFormat == "json" {
		line, err := json.Marshal(map[string]interface{}{
			"key":    change.Key,
			"entity": change.Entity,
		})
		if err != nil {
			return
		}
		fmt.Println(string(line))
		return
	}

	stamp := time.Now().Format("15:04:05")
	switch e := change.Entity.(type) {
	case *entity.Project:
		printer.Success("[%s] project  %-30s %s\n", stamp, e.Title, e.Address.String())
	case *entity.Conversation:
		printer.Printf("[%s] convo    %-30s %s\n", stamp, truncate(e.Title, 30), e.ID)
	case *entity.Task:
		printer.Printf("[%s] task     %-30s status=%s\n", stamp, truncate(e.Title, 30), e.Status)
	case *entity.AgentProfile:
		printer.Printf("[%s] agent    %-30s role=%s\n", stamp, truncate(e.DisplayName, 30), e.Role)
	case *entity.ProjectStatus:
		printer.Step("[%s] status   %s agents=%d\n", stamp, e.ProjectAddress.String(), len(e.AvailableAgents))
	case *entity.TypingSignal:
		if e.IsValid() {
			printer.Step("[%s] typing   %s %s\n", stamp, e.ConversationID, truncate(e.Message, 40))
		}
	case *entity.Lesson:
		printer.Printf("[%s] lesson   %s\n", stamp, truncate(e.Title, 40))
	default:
		printer.Printf("[%s] change   %s\n", stamp, change.Key)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
