package handlers

import (
	"meeting-todos-backend/pkg/middleware"
)

const dateSchema = `{"type": ["string", "null"], "format": "date"}`

const actionItemSchema = `{
	"type": "object",
	"required": ["text"],
	"properties": {
		"id": {"type": "string"},
		"text": {"type": "string"},
		"assignee": {"type": "string"},
		"dueDate": ` + dateSchema + `,
		"completed": {"type": "boolean"}
	}
}`

// Request body schemas, applied with middleware.ValidateJSON
var (
	SignInSchema = middleware.MustCompileSchema("signin", `{
		"type": "object",
		"required": ["credential"],
		"properties": {
			"credential": {"type": "string", "minLength": 1},
			"state": {"type": "string"}
		}
	}`)

	RefreshSchema = middleware.MustCompileSchema("refresh", `{
		"type": "object",
		"required": ["refresh_token"],
		"properties": {
			"refresh_token": {"type": "string", "minLength": 1}
		}
	}`)

	CreateOrganisationSchema = middleware.MustCompileSchema("organisation", `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1, "maxLength": 200, "pattern": "\\S"}
		}
	}`)

	CreateTodoSchema = middleware.MustCompileSchema("todo-create", `{
		"type": "object",
		"required": ["title"],
		"additionalProperties": false,
		"properties": {
			"title": {"type": "string", "minLength": 1, "pattern": "\\S"},
			"description": {"type": "string"},
			"organisationId": {"type": "string"},
			"dueDate": `+dateSchema+`,
			"priority": {"enum": ["low", "medium", "high"]}
		}
	}`)

	UpdateTodoSchema = middleware.MustCompileSchema("todo-update", `{
		"type": "object",
		"minProperties": 1,
		"additionalProperties": false,
		"properties": {
			"title": {"type": "string", "minLength": 1, "pattern": "\\S"},
			"description": {"type": "string"},
			"completed": {"type": "boolean"},
			"dueDate": `+dateSchema+`,
			"clearDueDate": {"type": "boolean"},
			"priority": {"enum": ["low", "medium", "high"]},
			"organisationId": {"type": "string", "minLength": 1}
		}
	}`)

	ReorderSchema = middleware.MustCompileSchema("todo-reorder", `{
		"type": "object",
		"anyOf": [
			{"required": ["updates"]},
			{"required": ["ids"]}
		],
		"properties": {
			"updates": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["id", "order"],
					"properties": {
						"id": {"type": "string", "minLength": 1},
						"order": {"type": "integer", "minimum": 1}
					}
				}
			},
			"ids": {
				"type": "array",
				"items": {"type": "string", "minLength": 1},
				"uniqueItems": true
			}
		}
	}`)

	CreateMeetingSchema = middleware.MustCompileSchema("meeting-create", `{
		"type": "object",
		"required": ["title"],
		"additionalProperties": false,
		"properties": {
			"organisationId": {"type": "string"},
			"title": {"type": "string", "minLength": 1, "pattern": "\\S"},
			"date": {"type": "string", "format": "date-time"},
			"attendees": {"type": "array", "items": {"type": "string"}},
			"attendeesText": {"type": "string"},
			"notes": {"type": "string"},
			"actionItems": {"type": "array", "items": `+actionItemSchema+`},
			"actionItemsText": {"type": "string"}
		}
	}`)

	UpdateMeetingSchema = middleware.MustCompileSchema("meeting-update", `{
		"type": "object",
		"minProperties": 1,
		"additionalProperties": false,
		"properties": {
			"organisationId": {"type": "string", "minLength": 1},
			"title": {"type": "string", "minLength": 1, "pattern": "\\S"},
			"date": {"type": "string", "format": "date-time"},
			"attendees": {"type": "array", "items": {"type": "string"}},
			"notes": {"type": "string"},
			"actionItems": {"type": "array", "items": `+actionItemSchema+`},
			"aiSummary": {"type": "string"},
			"aiInsights": {"type": "string"}
		}
	}`)

	GraphQLSchema = middleware.MustCompileSchema("graphql", `{
		"type": "object",
		"required": ["query"],
		"properties": {
			"query": {"type": "string", "minLength": 1},
			"operationName": {"type": ["string", "null"]},
			"variables": {"type": ["object", "null"]}
		}
	}`)
)
