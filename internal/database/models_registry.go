package database

import "askallery/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Parents come before the edge tables that reference them.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Profile{},
		&models.Follow{},
		&models.Post{},
		&models.PostLike{},
		&models.Comment{},
		&models.CommentLike{},
	}
}
