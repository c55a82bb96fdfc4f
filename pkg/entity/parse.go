package entity

import "github.com/dyluth/weir/pkg/record"

// FromRecord dispatches a record to the parser for its kind and returns the
// derived entity, or nil for kinds that do not produce stored entities
// (task aborts are consume-once signals, unknown kinds are ignored).
func FromRecord(r *record.Record) Entity {
	switch r.Kind {
	case record.KindProject:
		return ProjectFromRecord(r)
	case record.KindConversation, record.KindLessonComment:
		return ConversationFromRecord(r)
	case record.KindTask:
		return TaskFromRecord(r)
	case record.KindAgentProfile:
		return AgentProfileFromRecord(r)
	case record.KindProjectStatus:
		return ProjectStatusFromRecord(r)
	case record.KindTypingStart, record.KindTypingStop:
		return TypingSignalFromRecord(r)
	case record.KindLesson:
		return LessonFromRecord(r)
	default:
		return nil
	}
}
