package sync

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/taskbridge/taskbridge/internal/config"
	"github.com/taskbridge/taskbridge/internal/planner"
	"github.com/taskbridge/taskbridge/internal/task"
)

// parseTime parses an RFC 3339 timestamp or panics. Test fixtures only.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}

	return t
}

// testLogger returns a debug-level logger so all diagnostic output appears in
// failing test output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// testMappingConfig is the mapping used across mapper and engine tests:
// a title, a priority select, a label set, a due date, and a project, with
// completion tracked on a Status property.
func testMappingConfig() config.MappingConfig {
	return config.MappingConfig{
		Fields: map[string]string{
			"Task name": "content",
			"Notes":     "description",
			"Priority":  "priority",
			"Tags":      "labels",
			"Due":       "due",
			"Project":   "project",
		},
		Completion: config.CompletionConfig{
			Property:    "Status",
			DoneValue:   "Done",
			ReopenValue: "In Progress",
		},
		Parent: config.ParentConfig{
			Property:      "Parent task",
			TitleProperty: "Task name",
		},
		Description: config.DescriptionConfig{
			Separator: "\n\n",
		},
	}
}

func newTestMapper(t *testing.T) *Mapper {
	t.Helper()

	return NewMapper(testMappingConfig(), testLogger(t))
}

// pageBuilder assembles planner pages for tests.
type pageBuilder struct {
	page *planner.Page
}

func newPage(id string) *pageBuilder {
	return &pageBuilder{page: &planner.Page{
		ID:         id,
		Properties: make(map[string]task.FieldValue),
	}}
}

func (b *pageBuilder) title(s string) *pageBuilder {
	b.page.Properties["Task name"] = task.FieldValue{Kind: task.KindTitle, Text: s}
	return b
}

func (b *pageBuilder) notes(s string) *pageBuilder {
	b.page.Properties["Notes"] = task.FieldValue{Kind: task.KindRichText, Text: s}
	return b
}

func (b *pageBuilder) priority(option string) *pageBuilder {
	b.page.Properties["Priority"] = task.FieldValue{Kind: task.KindSelect, Option: option}
	return b
}

func (b *pageBuilder) tags(names ...string) *pageBuilder {
	b.page.Properties["Tags"] = task.FieldValue{Kind: task.KindMultiSelect, Options: names}
	return b
}

func (b *pageBuilder) due(start string) *pageBuilder {
	b.page.Properties["Due"] = task.FieldValue{Kind: task.KindDate, Date: &task.DateValue{Start: start}}
	return b
}

func (b *pageBuilder) dueText(s string) *pageBuilder {
	b.page.Properties["Due"] = task.FieldValue{Kind: task.KindRichText, Text: s}
	return b
}

func (b *pageBuilder) project(name string) *pageBuilder {
	b.page.Properties["Project"] = task.FieldValue{Kind: task.KindSelect, Option: name}
	return b
}

func (b *pageBuilder) status(option string) *pageBuilder {
	b.page.Properties["Status"] = task.FieldValue{Kind: task.KindStatus, Option: option}
	return b
}

func (b *pageBuilder) parent(ids ...string) *pageBuilder {
	b.page.Properties["Parent task"] = task.FieldValue{Kind: task.KindRelation, Relation: ids}
	return b
}

func (b *pageBuilder) edited(ts string) *pageBuilder {
	b.page.LastEditedTime = parseTime(ts)
	return b
}

func (b *pageBuilder) created(ts string) *pageBuilder {
	b.page.CreatedTime = parseTime(ts)
	return b
}

func (b *pageBuilder) archived() *pageBuilder {
	b.page.Archived = true
	return b
}

func (b *pageBuilder) build() *planner.Page {
	return b.page
}
