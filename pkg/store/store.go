package store

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/ordering"
)

// Scope 当前会话；所有按用户分区的读写都显式传入
type Scope interface {
	UserID() string
}

// ErrNoSession 没有已认证用户
var ErrNoSession = errors.New("no authenticated session")

// StoreError 存储操作失败（网络、权限、配额等），调用方不能假设部分成功
type StoreError struct {
	Op   string
	Path database.Path
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Collection names
const (
	usersCollection         = "users"
	todosCollection         = "todos"
	meetingNotesCollection  = "meetingNotes"
	organisationsCollection = "organisations"
)

// UserDoc users/{uid}
func UserDoc(uid string) database.Path {
	return database.Collection(usersCollection).Doc(uid)
}

// TodosOf users/{uid}/todos
func TodosOf(uid string) database.Path {
	return UserDoc(uid).Collection(todosCollection)
}

// MeetingNotesOf users/{uid}/meetingNotes
func MeetingNotesOf(uid string) database.Path {
	return UserDoc(uid).Collection(meetingNotesCollection)
}

// OrganisationDoc organisations/{id}
func OrganisationDoc(id string) database.Path {
	return database.Collection(organisationsCollection).Doc(id)
}

// Store 各实体的数据访问入口
type Store struct {
	Todos         *Todos
	Meetings      *Meetings
	Users         *Users
	Organisations *Organisations
}

// New 基于任一存储后端创建数据访问层
func New(db database.DatabaseInterface, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := base{db: db, logger: logger, now: time.Now}
	return &Store{
		Todos:         &Todos{base: b, assigner: ordering.NewAssigner(db)},
		Meetings:      &Meetings{base: b},
		Users:         &Users{base: b},
		Organisations: &Organisations{base: b},
	}
}

type base struct {
	db     database.DatabaseInterface
	logger *zap.Logger
	now    func() time.Time
}

func (b base) timestamp() time.Time {
	return b.now().UTC()
}

// fail 记录并包装存储错误
func (b base) fail(op string, path database.Path, err error) error {
	b.logger.Warn("store operation failed",
		zap.String("op", op),
		zap.String("path", path.String()),
		zap.Error(err))
	return &StoreError{Op: op, Path: path, Err: err}
}

func userID(scope Scope) (string, error) {
	if scope == nil || scope.UserID() == "" {
		return "", ErrNoSession
	}
	return scope.UserID(), nil
}
