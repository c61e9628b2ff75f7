package protocol

// FrameType enumerates the IPC JSON frame shapes the sandbox writes into
// its input/messages/tasks directories, and the host writes into input/.
type FrameType string

const (
	FrameMessage      FrameType = "message"
	FrameSendMessage  FrameType = "send_message"
	FrameScheduleTask FrameType = "schedule_task"
	FramePauseTask    FrameType = "pause_task"
	FrameResumeTask   FrameType = "resume_task"
	FrameCancelTask   FrameType = "cancel_task"
	FrameRefreshGroups FrameType = "refresh_groups"
	FrameRegisterGroup FrameType = "register_group"
)

// InputMessageFrame is written by the host into a folder's input/
// directory to pipe a follow-up prompt to a live sandbox.
type InputMessageFrame struct {
	Type FrameType `json:"type"`
	Text string    `json:"text"`
}

// SendMessageFrame is written by the sandbox into its messages/ directory
// to request delivery of text back through a chat channel.
type SendMessageFrame struct {
	Type         FrameType `json:"type"`
	TargetChatID string    `json:"target_chat_id"`
	Text         string    `json:"text"`
}

// TaskCommandFrame is written by the sandbox into its tasks/ directory.
// Only the fields relevant to Type are populated; the rest are left zero.
type TaskCommandFrame struct {
	Type FrameType `json:"type"`

	// schedule_task
	Prompt        string `json:"prompt,omitempty"`
	ScheduleKind  string `json:"schedule_kind,omitempty"`
	ScheduleValue string `json:"schedule_value,omitempty"`
	TargetChatID  string `json:"target_chat_id,omitempty"`
	ContextMode   string `json:"context_mode,omitempty"`

	// pause_task / resume_task / cancel_task
	TaskID string `json:"task_id,omitempty"`

	// register_group
	Folder          string `json:"folder,omitempty"`
	ChatID          string `json:"chat_id,omitempty"`
	Channel         string `json:"channel,omitempty"`
	Name            string `json:"name,omitempty"`
	TriggerPattern  string `json:"trigger_pattern,omitempty"`
	RequiresTrigger bool   `json:"requires_trigger,omitempty"`
}
