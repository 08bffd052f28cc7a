package store

import (
	"context"
	"errors"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/models"
)

// Meetings users/{uid}/meetingNotes 的数据访问
type Meetings struct {
	base
}

// Create 创建会议纪要；未给出日期时使用当前时间
func (r *Meetings) Create(ctx context.Context, scope Scope, in models.NewMeetingNote) (string, error) {
	uid, err := userID(scope)
	if err != nil {
		return "", err
	}
	in.Normalize()

	now := r.timestamp()
	date := now
	if in.Date != nil && !in.Date.IsZero() {
		date = in.Date.UTC()
	}
	attendees := in.Attendees
	if attendees == nil {
		attendees = []string{}
	}

	fields := database.Document{
		"organisationId": in.OrganisationID,
		"title":          in.Title,
		"date":           date,
		"attendees":      attendeesValue(attendees),
		"notes":          in.Notes,
		"actionItems":    actionItemsValue(buildActionItems(in.ActionItems, nil, now)),
		"createdBy":      uid,
		"createdAt":      now,
		"updatedAt":      now,
	}

	coll := MeetingNotesOf(uid)
	id, err := r.db.Add(ctx, coll, fields)
	if err != nil {
		return "", r.fail("create meeting note in", coll, err)
	}
	return id, nil
}

// List 当前用户的会议纪要，按日期降序
func (r *Meetings) List(ctx context.Context, scope Scope) ([]models.MeetingNote, error) {
	uid, err := userID(scope)
	if err != nil {
		return nil, err
	}
	coll := MeetingNotesOf(uid)
	snaps, err := r.db.Query(ctx, coll, database.Query{OrderBy: "date", Direction: database.Descending})
	if err != nil {
		return nil, r.fail("list meeting notes in", coll, err)
	}

	notes := make([]models.MeetingNote, 0, len(snaps))
	for _, s := range snaps {
		notes = append(notes, meetingFromSnapshot(s))
	}
	return notes, nil
}

// Get 读取单个会议纪要
func (r *Meetings) Get(ctx context.Context, scope Scope, id string) (*models.MeetingNote, error) {
	uid, err := userID(scope)
	if err != nil {
		return nil, err
	}
	path := MeetingNotesOf(uid).Doc(id)
	snap, err := r.db.Get(ctx, path)
	if err != nil {
		return nil, r.fail("get meeting note", path, err)
	}
	note := meetingFromSnapshot(*snap)
	return &note, nil
}

// Update 合并给出的字段；行动项整体替换
func (r *Meetings) Update(ctx context.Context, scope Scope, id string, patch models.MeetingPatch) error {
	uid, err := userID(scope)
	if err != nil {
		return err
	}
	path := MeetingNotesOf(uid).Doc(id)
	now := r.timestamp()

	fields := database.Document{"updatedAt": now}
	if patch.Title != nil {
		fields["title"] = *patch.Title
	}
	if patch.Date != nil {
		fields["date"] = patch.Date.UTC()
	}
	if patch.Attendees != nil {
		fields["attendees"] = attendeesValue(*patch.Attendees)
	}
	if patch.Notes != nil {
		fields["notes"] = *patch.Notes
	}
	if patch.AISummary != nil {
		fields["aiSummary"] = *patch.AISummary
	}
	if patch.AIInsights != nil {
		fields["aiInsights"] = *patch.AIInsights
	}
	if patch.OrganisationID != nil {
		fields["organisationId"] = *patch.OrganisationID
	}
	if patch.ActionItems != nil {
		var existing []models.ActionItem
		snap, err := r.db.Get(ctx, path)
		switch {
		case err == nil:
			existing = meetingFromSnapshot(*snap).ActionItems
		case errors.Is(err, database.ErrNotFound):
			// Update 会返回 ErrNotFound
		default:
			return r.fail("get meeting note", path, err)
		}
		fields["actionItems"] = actionItemsValue(buildActionItems(*patch.ActionItems, existing, now))
	}

	if err := r.db.Update(ctx, path, fields); err != nil {
		return r.fail("update meeting note", path, err)
	}
	return nil
}

// Delete 删除会议纪要及其行动项；ID 不存在时不报错
func (r *Meetings) Delete(ctx context.Context, scope Scope, id string) error {
	uid, err := userID(scope)
	if err != nil {
		return err
	}
	path := MeetingNotesOf(uid).Doc(id)
	if err := r.db.Delete(ctx, path); err != nil {
		return r.fail("delete meeting note", path, err)
	}
	return nil
}
