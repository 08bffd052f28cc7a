package models

import (
	"strings"
	"time"
)

// ActionItem 会议纪要中的行动项，随会议一起存储
type ActionItem struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Assignee  string    `json:"assignee"`
	DueDate   *Date     `json:"dueDate,omitempty"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// MeetingNote represents a meeting stored under users/{createdBy}/meetingNotes.
type MeetingNote struct {
	ID             string       `json:"id"`
	OrganisationID string       `json:"organisationId"`
	Title          string       `json:"title"`
	Date           time.Time    `json:"date"`
	Attendees      []string     `json:"attendees"`
	Notes          string       `json:"notes"`
	ActionItems    []ActionItem `json:"actionItems"`
	AISummary      string       `json:"aiSummary,omitempty"`
	AIInsights     string       `json:"aiInsights,omitempty"`
	CreatedBy      string       `json:"createdBy"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// ActionItemInput 行动项输入；ID 为空时由服务端生成
type ActionItemInput struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text"`
	Assignee  string `json:"assignee,omitempty"`
	DueDate   *Date  `json:"dueDate,omitempty"`
	Completed bool   `json:"completed,omitempty"`
}

// NewMeetingNote 创建会议纪要的输入
type NewMeetingNote struct {
	OrganisationID  string            `json:"organisationId,omitempty"`
	Title           string            `json:"title"`
	Date            *time.Time        `json:"date,omitempty"`
	Attendees       []string          `json:"attendees,omitempty"`
	AttendeesText   string            `json:"attendeesText,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	ActionItems     []ActionItemInput `json:"actionItems,omitempty"`
	ActionItemsText string            `json:"actionItemsText,omitempty"`
}

// Normalize 把文本形式的参会人与行动项合并进列表字段
func (n *NewMeetingNote) Normalize() {
	if len(n.Attendees) == 0 && n.AttendeesText != "" {
		n.Attendees = ParseAttendees(n.AttendeesText)
	}
	if len(n.ActionItems) == 0 && n.ActionItemsText != "" {
		n.ActionItems = ParseActionItems(n.ActionItemsText)
	}
	n.AttendeesText, n.ActionItemsText = "", ""
}

// MeetingPatch 部分更新，nil 字段不修改；ActionItems 非 nil 时整体替换
type MeetingPatch struct {
	Title          *string            `json:"title,omitempty"`
	Date           *time.Time         `json:"date,omitempty"`
	Attendees      *[]string          `json:"attendees,omitempty"`
	Notes          *string            `json:"notes,omitempty"`
	ActionItems    *[]ActionItemInput `json:"actionItems,omitempty"`
	AISummary      *string            `json:"aiSummary,omitempty"`
	AIInsights     *string            `json:"aiInsights,omitempty"`
	OrganisationID *string            `json:"organisationId,omitempty"`
}

// IsEmpty 没有任何字段需要更新
func (p MeetingPatch) IsEmpty() bool {
	return p.Title == nil && p.Date == nil && p.Attendees == nil && p.Notes == nil &&
		p.ActionItems == nil && p.AISummary == nil && p.AIInsights == nil && p.OrganisationID == nil
}

// ParseAttendees 解析逗号分隔的参会人，去掉空白项
func ParseAttendees(text string) []string {
	attendees := []string{}
	for _, part := range strings.Split(text, ",") {
		if name := strings.TrimSpace(part); name != "" {
			attendees = append(attendees, name)
		}
	}
	return attendees
}

// ParseActionItems 每个非空行生成一个行动项
func ParseActionItems(text string) []ActionItemInput {
	items := []ActionItemInput{}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			items = append(items, ActionItemInput{Text: line})
		}
	}
	return items
}
