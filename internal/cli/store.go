package cli

import (
	"database/sql"

	"github.com/anzchy/chat-memo-pro-sub000/internal/config"
	"github.com/anzchy/chat-memo-pro-sub000/internal/repository"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/database"
)

// openStore 打开本地 SQLite 存储，调用方负责关闭返回的 *sql.DB。
func openStore(cfg config.Config) (repository.ConversationRepository, *sql.DB, error) {
	db, err := database.OpenSQLite(cfg.Database.SQLite.Path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	repo, err := repository.NewSQLiteConversationRepository(db)
	if err != nil {
		db.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to initialize store", err)
	}
	return repo, db, nil
}
