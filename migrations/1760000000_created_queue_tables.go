package migrations

import (
	"queue-ticket/internal/store/sqlstore"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		return sqlstore.Migrate(app.DB())
	}, func(app core.App) error {
		return sqlstore.Drop(app.DB())
	})
}
