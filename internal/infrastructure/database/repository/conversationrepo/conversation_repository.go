package conversationrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/infrastructure/database/dbschema"
	"jan-server/services/chat-api/internal/infrastructure/database/transaction"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type ConversationGormRepository struct {
	db *transaction.Database
}

var _ conversation.Repository = (*ConversationGormRepository)(nil)

func NewConversationGormRepository(db *transaction.Database) conversation.Repository {
	return &ConversationGormRepository{db}
}

// FindConversation implements conversation.Repository.
func (repo *ConversationGormRepository) FindConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	var row dbschema.Conversation
	err := repo.db.GetTx(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find conversation")
	}
	return row.EtoD(), nil
}

// CreateConversation implements conversation.Repository. An existing row
// with the same id is left untouched.
func (repo *ConversationGormRepository) CreateConversation(ctx context.Context, conv *conversation.Conversation) error {
	model := dbschema.NewSchemaConversation(conv)
	now := time.Now().UTC()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = model.CreatedAt
	}
	err := repo.db.GetTx(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(model).Error
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create conversation")
	}
	conv.CreatedAt = model.CreatedAt
	conv.UpdatedAt = model.UpdatedAt
	return nil
}

// TouchConversation implements conversation.Repository.
func (repo *ConversationGormRepository) TouchConversation(ctx context.Context, id string, model string) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if model != "" {
		updates["model"] = model
	}
	err := repo.db.GetTx(ctx).Model(&dbschema.Conversation{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to touch conversation")
	}
	return nil
}

// UpdateTitle implements conversation.Repository.
func (repo *ConversationGormRepository) UpdateTitle(ctx context.Context, id string, title string) error {
	result := repo.db.GetTx(ctx).Model(&dbschema.Conversation{}).Where("id = ?", id).Update("title", title)
	if result.Error != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, result.Error, "failed to update conversation title")
	}
	if result.RowsAffected == 0 {
		return conversation.ErrNotFound
	}
	return nil
}

// ListConversations implements conversation.Repository.
func (repo *ConversationGormRepository) ListConversations(ctx context.Context, ownerID *string) ([]*conversation.Conversation, error) {
	sql := repo.db.GetTx(ctx).Model(&dbschema.Conversation{})
	if ownerID == nil {
		sql = sql.Where("owner_id IS NULL")
	} else {
		sql = sql.Where("owner_id = ?", *ownerID)
	}

	var rows []dbschema.Conversation
	if err := sql.Order("updated_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list conversations")
	}
	result := make([]*conversation.Conversation, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].EtoD())
	}
	return result, nil
}

// DeleteConversation implements conversation.Repository.
func (repo *ConversationGormRepository) DeleteConversation(ctx context.Context, id string) error {
	return repo.db.Transaction(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		if err := tx.Where("conversation_id = ?", id).Delete(&dbschema.Message{}).Error; err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to delete conversation messages")
		}
		if err := tx.Where("id = ?", id).Delete(&dbschema.Conversation{}).Error; err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to delete conversation")
		}
		return nil
	})
}

// InsertMessage implements conversation.Repository.
func (repo *ConversationGormRepository) InsertMessage(ctx context.Context, msg *conversation.Message) error {
	model := dbschema.NewSchemaMessage(msg)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := repo.db.GetTx(ctx).Create(model).Error; err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to insert message")
	}
	return nil
}

// DeleteMessage implements conversation.Repository.
func (repo *ConversationGormRepository) DeleteMessage(ctx context.Context, conversationID string, messageID string) error {
	err := repo.db.GetTx(ctx).
		Where("conversation_id = ? AND id = ?", conversationID, messageID).
		Delete(&dbschema.Message{}).Error
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to delete message")
	}
	return nil
}

// ListMessages implements conversation.Repository.
func (repo *ConversationGormRepository) ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	var rows []dbschema.Message
	err := repo.db.GetTx(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list messages")
	}
	result := make([]conversation.Message, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].EtoD())
	}
	return result, nil
}
