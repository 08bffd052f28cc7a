package gql

import (
	"context"
	"errors"
	"fmt"

	"github.com/graphql-go/graphql"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/models"
	"meeting-todos-backend/pkg/ordering"
	"meeting-todos-backend/pkg/store"
)

type viewerKey struct{}

// profileKey 当前请求已解析的用户资料
type profileKey struct{}

// WithViewer 把会话和资料放入 context 供 resolver 使用
func WithViewer(ctx context.Context, viewer store.Scope, profile *models.UserData) context.Context {
	ctx = context.WithValue(ctx, viewerKey{}, viewer)
	return context.WithValue(ctx, profileKey{}, profile)
}

func viewerFrom(ctx context.Context) (store.Scope, error) {
	viewer, ok := ctx.Value(viewerKey{}).(store.Scope)
	if !ok || viewer == nil || viewer.UserID() == "" {
		return nil, store.ErrNoSession
	}
	return viewer, nil
}

// GetQueryFields returns the query fields mounted in the root schema
func GetQueryFields(st *store.Store) graphql.Fields {
	return graphql.Fields{
		"me": &graphql.Field{
			Type: UserType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if _, err := viewerFrom(p.Context); err != nil {
					return nil, err
				}
				profile, _ := p.Context.Value(profileKey{}).(*models.UserData)
				return profile, nil
			},
		},
		"todos": &graphql.Field{
			Type: graphql.NewList(TodoType),
			Args: graphql.FieldConfigArgument{
				"completed": &graphql.ArgumentConfig{Type: graphql.Boolean},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				viewer, err := viewerFrom(p.Context)
				if err != nil {
					return nil, err
				}
				todos, err := st.Todos.List(p.Context, viewer)
				if err != nil {
					return nil, fmt.Errorf("failed to load todos")
				}
				completed, filtered := p.Args["completed"].(bool)
				if !filtered {
					return todos, nil
				}
				active, done := ordering.Partition(todos)
				if completed {
					return done, nil
				}
				return active, nil
			},
		},
		"todo": &graphql.Field{
			Type: TodoType,
			Args: graphql.FieldConfigArgument{
				"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				viewer, err := viewerFrom(p.Context)
				if err != nil {
					return nil, err
				}
				todo, err := st.Todos.Get(p.Context, viewer, p.Args["id"].(string))
				if errors.Is(err, database.ErrNotFound) {
					return nil, fmt.Errorf("todo not found")
				}
				if err != nil {
					return nil, fmt.Errorf("failed to load todo")
				}
				return *todo, nil
			},
		},
		"meetingNotes": &graphql.Field{
			Type: graphql.NewList(MeetingNoteType),
			Args: graphql.FieldConfigArgument{
				"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				viewer, err := viewerFrom(p.Context)
				if err != nil {
					return nil, err
				}
				meetings, err := st.Meetings.List(p.Context, viewer)
				if err != nil {
					return nil, fmt.Errorf("failed to load meeting notes")
				}
				if limit, _ := p.Args["limit"].(int); limit > 0 && limit < len(meetings) {
					meetings = meetings[:limit]
				}
				return meetings, nil
			},
		},
	}
}

// NewSchema 只读查询 schema
func NewSchema(st *store.Store) (graphql.Schema, error) {
	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: GetQueryFields(st),
		}),
	})
}
