// internal/infrastructure/persistence/postgres/models/favorite_city.go
package models

import "time"

// FavoriteCity - избранный город пользователя
type FavoriteCity struct {
	ID        int64     `db:"id" json:"id"`
	City      string    `db:"city" json:"city"`
	Position  int       `db:"position" json:"position"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
