package store

import (
	"context"
	"errors"

	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/models"
)

// Organisations organisations/{id}
type Organisations struct {
	base
}

// Get 读取组织；不存在时返回 (nil, nil)
func (r *Organisations) Get(ctx context.Context, id string) (*models.Organisation, error) {
	path := OrganisationDoc(id)
	snap, err := r.db.Get(ctx, path)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.fail("get organisation", path, err)
	}
	return organisationFromSnapshot(*snap), nil
}

// Create 创建组织，返回新 ID
func (r *Organisations) Create(ctx context.Context, name string) (string, error) {
	now := r.timestamp()
	coll := database.Collection(organisationsCollection)
	id, err := r.db.Add(ctx, coll, database.Document{
		"name":      name,
		"createdAt": now,
		"updatedAt": now,
	})
	if err != nil {
		return "", r.fail("create organisation in", coll, err)
	}
	return id, nil
}

// Rename 修改组织名称
func (r *Organisations) Rename(ctx context.Context, id, name string) error {
	path := OrganisationDoc(id)
	if err := r.db.Update(ctx, path, database.Document{"name": name, "updatedAt": r.timestamp()}); err != nil {
		return r.fail("rename organisation", path, err)
	}
	return nil
}
