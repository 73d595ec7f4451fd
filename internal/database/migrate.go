package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-teamchat/internal/models"
)

const parentMessageConstraint = "fk_messages_parent_message"

// Migrate creates or updates the chat schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate chat schema: %w", err)
	}

	// Replies keep a weak link to their parent; removing the parent clears it instead of cascading.
	if db.Dialector.Name() == "postgres" && !db.Migrator().HasConstraint(&models.Message{}, parentMessageConstraint) {
		stmt := fmt.Sprintf(
			"ALTER TABLE messages ADD CONSTRAINT %s FOREIGN KEY (parent_message_id) REFERENCES messages(id) ON DELETE SET NULL",
			parentMessageConstraint,
		)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to add parent message constraint: %w", err)
		}
	}

	return nil
}
