// Package gql defines the read-only GraphQL schema over the user's todos and meeting notes.
package gql

import (
	"github.com/graphql-go/graphql"

	"meeting-todos-backend/pkg/models"
)

// resolveDate 日历日期以 "YYYY-MM-DD" 输出
func resolveDate(d *models.Date) interface{} {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

// OrganisationType organisations/{id}
var OrganisationType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Organisation",
	Fields: graphql.Fields{
		"id":        &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"name":      &graphql.Field{Type: graphql.String},
		"createdAt": &graphql.Field{Type: graphql.DateTime},
		"updatedAt": &graphql.Field{Type: graphql.DateTime},
	},
})

// UserType 当前用户资料
var UserType = graphql.NewObject(graphql.ObjectConfig{
	Name: "User",
	Fields: graphql.Fields{
		"id":                &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"email":             &graphql.Field{Type: graphql.String},
		"displayName":       &graphql.Field{Type: graphql.String},
		"createdAt":         &graphql.Field{Type: graphql.DateTime},
		"lastLoginAt":       &graphql.Field{Type: graphql.DateTime},
		"organisations":     &graphql.Field{Type: graphql.NewList(graphql.String)},
		"organisationsData": &graphql.Field{Type: graphql.NewList(OrganisationType)},
	},
})

// TodoType users/{uid}/todos
var TodoType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Todo",
	Fields: graphql.Fields{
		"id":             &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"title":          &graphql.Field{Type: graphql.String},
		"description":    &graphql.Field{Type: graphql.String},
		"completed":      &graphql.Field{Type: graphql.Boolean},
		"createdBy":      &graphql.Field{Type: graphql.String},
		"organisationId": &graphql.Field{Type: graphql.String},
		"order":          &graphql.Field{Type: graphql.Int},
		"dueDate": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if todo, ok := p.Source.(models.Todo); ok {
					return resolveDate(todo.DueDate), nil
				}
				return nil, nil
			},
		},
		"priority": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if todo, ok := p.Source.(models.Todo); ok {
					return string(todo.Priority), nil
				}
				return nil, nil
			},
		},
		"createdAt": &graphql.Field{Type: graphql.DateTime},
		"updatedAt": &graphql.Field{Type: graphql.DateTime},
	},
})

// ActionItemType 会议行动项
var ActionItemType = graphql.NewObject(graphql.ObjectConfig{
	Name: "ActionItem",
	Fields: graphql.Fields{
		"id":       &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"text":     &graphql.Field{Type: graphql.String},
		"assignee": &graphql.Field{Type: graphql.String},
		"dueDate": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if item, ok := p.Source.(models.ActionItem); ok {
					return resolveDate(item.DueDate), nil
				}
				return nil, nil
			},
		},
		"completed": &graphql.Field{Type: graphql.Boolean},
		"createdAt": &graphql.Field{Type: graphql.DateTime},
	},
})

// MeetingNoteType users/{uid}/meetingNotes
var MeetingNoteType = graphql.NewObject(graphql.ObjectConfig{
	Name: "MeetingNote",
	Fields: graphql.Fields{
		"id":             &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"organisationId": &graphql.Field{Type: graphql.String},
		"title":          &graphql.Field{Type: graphql.String},
		"date":           &graphql.Field{Type: graphql.DateTime},
		"attendees":      &graphql.Field{Type: graphql.NewList(graphql.String)},
		"notes":          &graphql.Field{Type: graphql.String},
		"actionItems":    &graphql.Field{Type: graphql.NewList(ActionItemType)},
		"aiSummary":      &graphql.Field{Type: graphql.String},
		"aiInsights":     &graphql.Field{Type: graphql.String},
		"createdBy":      &graphql.Field{Type: graphql.String},
		"createdAt":      &graphql.Field{Type: graphql.DateTime},
		"updatedAt":      &graphql.Field{Type: graphql.DateTime},
	},
})
