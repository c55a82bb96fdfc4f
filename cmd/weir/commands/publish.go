package commands

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/weir/internal/printer"
	"github.com/dyluth/weir/pkg/entity"
	"github.com/dyluth/weir/pkg/record"
)

var (
	publishProject string
	publishTitle   string
	publishContent string
	publishKind    string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a record to the relay",
	Long: `Build a record from a local draft and publish it.

The --kind flag selects what is published:
  project      - create or refresh a project (--project is the slug)
  conversation - start a conversation in a project (--project is an address)
  task         - create a task in a project (--project is an address)

Examples:
  # Create a project
  weir publish --kind project --project myproj --title "My Project"

  # Start a conversation
  weir publish --kind conversation --project 31933:pk1:myproj --content "Hello"`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishKind, "kind", "conversation", "Record kind: project, conversation or task")
	publishCmd.Flags().StringVar(&publishProject, "project", "", "Project slug (project kind) or address (other kinds)")
	publishCmd.Flags().StringVar(&publishTitle, "title", "", "Title tag value")
	publishCmd.Flags().StringVar(&publishContent, "content", "", "Record content")
	publishCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, client, err := openTransport()
	if err != nil {
		return printer.Error("Cannot publish", err.Error(), nil)
	}
	defer client.Close()

	creator := cfg.Identity.PublicKey
	if creator == "" {
		return printer.Error(
			"No signing identity configured",
			"Publishing requires identity.public_key in weir.yml.",
			nil,
		)
	}

	now := time.Now()
	var rec *record.Record

	switch publishKind {
	case "project":
		rec = entity.ProjectDraft{
			CreatorID:   creator,
			Slug:        publishProject,
			Title:       publishTitle,
			Description: publishContent,
		}.Record(now)

	case "conversation":
		address := entity.ParseAddress(publishProject)
		if address.IsZero() {
			return printer.Error("Invalid project address", "Expected kind:creator:slug, got '"+publishProject+"'.", nil)
		}
		rec = entity.ConversationDraft{
			CreatorID:      creator,
			ProjectAddress: address,
			Title:          publishTitle,
			Content:        publishContent,
		}.Record(now)

	case "task":
		address := entity.ParseAddress(publishProject)
		if address.IsZero() {
			return printer.Error("Invalid project address", "Expected kind:creator:slug, got '"+publishProject+"'.", nil)
		}
		rec = entity.TaskDraft{
			CreatorID:      creator,
			ProjectAddress: address,
			Title:          publishTitle,
			Content:        publishContent,
		}.Record(now)

	default:
		return printer.Error("Unknown kind: "+publishKind, "Use project, conversation or task.", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	acks, err := client.Publish(ctx, rec)
	if err != nil {
		return printer.Error("Publish failed", err.Error(), []string{
			"The draft was not applied anywhere; fix the relay connection and retry",
		})
	}

	printer.Success("Published %s %s (acknowledged by %s)\n", publishKind, rec.ID, strings.Join(acks, ", "))
	return nil
}
