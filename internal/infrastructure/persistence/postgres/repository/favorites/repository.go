// internal/infrastructure/persistence/postgres/repository/favorites/repository.go
package favorites

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"crypto-weather-sync/internal/infrastructure/persistence/postgres/models"
	"crypto-weather-sync/internal/types"
)

// FavoritesRepository интерфейс репозитория избранных городов
type FavoritesRepository interface {
	types.FavoritesProvider
	List(ctx context.Context) ([]*models.FavoriteCity, error)
	Add(ctx context.Context, city string) error
	Remove(ctx context.Context, city string) error
	SeedIfEmpty(ctx context.Context, cities []string) (int, error)
}

// favoritesRepositoryImpl реализация FavoritesRepository
type favoritesRepositoryImpl struct {
	db *sqlx.DB
}

// NewFavoritesRepository создает новый репозиторий
func NewFavoritesRepository(db *sqlx.DB) FavoritesRepository {
	return &favoritesRepositoryImpl{db: db}
}

// List возвращает избранные города по порядку
func (r *favoritesRepositoryImpl) List(ctx context.Context) ([]*models.FavoriteCity, error) {
	query := `
	SELECT id, city, position, created_at FROM favorite_cities
	ORDER BY position ASC, id ASC
	`

	var cities []*models.FavoriteCity
	if err := r.db.SelectContext(ctx, &cities, query); err != nil {
		return nil, fmt.Errorf("ошибка получения избранных городов: %w", err)
	}

	return cities, nil
}

// FavoriteCities - доступ только на чтение для опросчика погоды
func (r *favoritesRepositoryImpl) FavoriteCities(ctx context.Context) ([]string, error) {
	query := `SELECT city FROM favorite_cities ORDER BY position ASC, id ASC`

	var cities []string
	if err := r.db.SelectContext(ctx, &cities, query); err != nil {
		return nil, fmt.Errorf("ошибка получения избранных городов: %w", err)
	}

	return cities, nil
}

// Add добавляет город в конец списка; повторное добавление игнорируется
func (r *favoritesRepositoryImpl) Add(ctx context.Context, city string) error {
	city = strings.TrimSpace(city)
	if city == "" {
		return fmt.Errorf("пустое название города")
	}

	query := `
	INSERT INTO favorite_cities (city, position)
	VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM favorite_cities))
	ON CONFLICT (city) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, city); err != nil {
		return fmt.Errorf("ошибка добавления города %s: %w", city, err)
	}

	return nil
}

// Remove удаляет город
func (r *favoritesRepositoryImpl) Remove(ctx context.Context, city string) error {
	query := `DELETE FROM favorite_cities WHERE city = $1`

	if _, err := r.db.ExecContext(ctx, query, city); err != nil {
		return fmt.Errorf("ошибка удаления города %s: %w", city, err)
	}

	return nil
}

// SeedIfEmpty заполняет пустую таблицу начальным списком в одной транзакции
func (r *favoritesRepositoryImpl) SeedIfEmpty(ctx context.Context, cities []string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM favorite_cities`); err != nil {
		return 0, fmt.Errorf("ошибка подсчета городов: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	inserted := 0
	for i, city := range cities {
		city = strings.TrimSpace(city)
		if city == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO favorite_cities (city, position) VALUES ($1, $2) ON CONFLICT (city) DO NOTHING`,
			city, i+1,
		); err != nil {
			return 0, fmt.Errorf("ошибка добавления города %s: %w", city, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return inserted, nil
}
