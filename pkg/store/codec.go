package store

import (
	"time"

	"github.com/google/uuid"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/models"
)

func timeField(v interface{}) time.Time {
	t, ok := database.TimeValue(v)
	if !ok {
		return time.Time{}
	}
	return t.UTC()
}

// dateField 日历日期按 "YYYY-MM-DD" 存储；零值表示没有日期
func dateField(d *models.Date) interface{} {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

// dateValue 兼容旧数据中以时间戳存储的日期（取 UTC 日历日）
func dateValue(v interface{}) *models.Date {
	if s, ok := v.(string); ok && len(s) == len(models.DateLayout) {
		if d, err := models.ParseDate(s); err == nil {
			return &d
		}
	}
	t, ok := database.TimeValue(v)
	if !ok {
		return nil
	}
	d := models.DateOf(t.UTC())
	return &d
}

func todoFromSnapshot(s database.Snapshot) models.Todo {
	d := s.Data
	order, _ := database.Int64Value(d["order"])
	return models.Todo{
		ID:             s.ID,
		Title:          database.StringValue(d["title"]),
		Description:    database.StringValue(d["description"]),
		Completed:      database.BoolValue(d["completed"]),
		CreatedBy:      database.StringValue(d["createdBy"]),
		OrganisationID: database.StringValue(d["organisationId"]),
		Order:          order,
		DueDate:        dateValue(d["dueDate"]),
		Priority:       models.Priority(database.StringValue(d["priority"])),
		CreatedAt:      timeField(d["createdAt"]),
		UpdatedAt:      timeField(d["updatedAt"]),
	}
}

func todoPatchFields(p models.TodoPatch) database.Document {
	fields := database.Document{}
	if p.Title != nil {
		fields["title"] = *p.Title
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Completed != nil {
		fields["completed"] = *p.Completed
	}
	if p.ClearDueDate {
		fields["dueDate"] = nil
	} else if p.DueDate != nil {
		fields["dueDate"] = dateField(p.DueDate)
	}
	if p.Priority != nil {
		fields["priority"] = string(*p.Priority)
	}
	if p.OrganisationID != nil {
		fields["organisationId"] = *p.OrganisationID
	}
	return fields
}

func actionItemFromMap(m map[string]interface{}) models.ActionItem {
	return models.ActionItem{
		ID:        database.StringValue(m["id"]),
		Text:      database.StringValue(m["text"]),
		Assignee:  database.StringValue(m["assignee"]),
		DueDate:   dateValue(m["dueDate"]),
		Completed: database.BoolValue(m["completed"]),
		CreatedAt: timeField(m["createdAt"]),
	}
}

func actionItemFields(a models.ActionItem) map[string]interface{} {
	m := map[string]interface{}{
		"id":        a.ID,
		"text":      a.Text,
		"assignee":  a.Assignee,
		"completed": a.Completed,
		"createdAt": a.CreatedAt.UTC(),
	}
	if due := dateField(a.DueDate); due != nil {
		m["dueDate"] = due
	}
	return m
}

// buildActionItems 为新行动项生成 ID 和创建时间；ID 已存在的保留原创建时间
func buildActionItems(inputs []models.ActionItemInput, existing []models.ActionItem, now time.Time) []models.ActionItem {
	created := make(map[string]time.Time, len(existing))
	for _, item := range existing {
		created[item.ID] = item.CreatedAt
	}

	items := make([]models.ActionItem, 0, len(inputs))
	for _, in := range inputs {
		item := models.ActionItem{
			ID:        in.ID,
			Text:      in.Text,
			Assignee:  in.Assignee,
			DueDate:   in.DueDate,
			Completed: in.Completed,
			CreatedAt: now,
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		} else if at, ok := created[item.ID]; ok {
			item.CreatedAt = at
		}
		items = append(items, item)
	}
	return items
}

func actionItemsValue(items []models.ActionItem) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = actionItemFields(item)
	}
	return out
}

func attendeesValue(attendees []string) []interface{} {
	out := make([]interface{}, len(attendees))
	for i, a := range attendees {
		out[i] = a
	}
	return out
}

func meetingFromSnapshot(s database.Snapshot) models.MeetingNote {
	d := s.Data
	attendees := database.StringSliceValue(d["attendees"])
	if attendees == nil {
		attendees = []string{}
	}
	items := make([]models.ActionItem, 0)
	for _, m := range database.MapSliceValue(d["actionItems"]) {
		items = append(items, actionItemFromMap(m))
	}
	return models.MeetingNote{
		ID:             s.ID,
		OrganisationID: database.StringValue(d["organisationId"]),
		Title:          database.StringValue(d["title"]),
		Date:           timeField(d["date"]),
		Attendees:      attendees,
		Notes:          database.StringValue(d["notes"]),
		ActionItems:    items,
		AISummary:      database.StringValue(d["aiSummary"]),
		AIInsights:     database.StringValue(d["aiInsights"]),
		CreatedBy:      database.StringValue(d["createdBy"]),
		CreatedAt:      timeField(d["createdAt"]),
		UpdatedAt:      timeField(d["updatedAt"]),
	}
}

func userFromSnapshot(s database.Snapshot) *models.UserData {
	d := s.Data
	orgs := database.StringSliceValue(d["organisations"])
	if orgs == nil {
		orgs = []string{}
	}
	return &models.UserData{
		ID:            s.ID,
		Email:         database.StringValue(d["email"]),
		DisplayName:   database.StringValue(d["displayName"]),
		CreatedAt:     timeField(d["createdAt"]),
		LastLoginAt:   timeField(d["lastLoginAt"]),
		Organisations: orgs,
	}
}

func organisationFromSnapshot(s database.Snapshot) *models.Organisation {
	return &models.Organisation{
		ID:        s.ID,
		Name:      database.StringValue(s.Data["name"]),
		CreatedAt: timeField(s.Data["createdAt"]),
		UpdatedAt: timeField(s.Data["updatedAt"]),
	}
}
