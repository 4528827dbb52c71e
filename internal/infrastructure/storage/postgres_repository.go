package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"PollutionSync/internal/domain"
	"PollutionSync/internal/ports"
)

const citiesTable = "cities"

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var cityColumns = []string{
	"id", "city_name", "country_name", "pollution", "description", "status", "created_at", "updated_at",
}

// PostgresRepository persists cities into Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.CityRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Exists reports whether a city with the exact name is stored. The jobs rely on
// UpsertPollution instead; Exists completes the repository contract.
func (r *PostgresRepository) Exists(ctx context.Context, cityName string) (bool, error) {
	query, args, err := existsQuery(cityName).ToSql()
	if err != nil {
		return false, persistence("build exists query", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, persistence("query city exists", err)
	}
	return exists, nil
}

// Create inserts a city and returns the stored row. Ingestion inserts through
// UpsertPollution; Create completes the repository contract.
func (r *PostgresRepository) Create(ctx context.Context, city domain.NewCity) (domain.City, error) {
	query, args, err := createQuery(city).ToSql()
	if err != nil {
		return domain.City{}, persistence("build insert", err)
	}

	created, err := scanCity(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.City{}, fmt.Errorf("%w: insert city %q: %w", domain.ErrPersistence, city.CityName, domain.ErrDuplicateCity)
		}
		return domain.City{}, persistence("insert city", err)
	}
	return created, nil
}

// UpdateByName applies the non-nil fields of update to the named city and
// bumps updated_at. It returns the number of affected rows. A rename onto a
// name already stored fails with domain.ErrDuplicateCity.
func (r *PostgresRepository) UpdateByName(ctx context.Context, cityName string, update domain.CityUpdate) (int64, error) {
	if update.Empty() {
		return 0, nil
	}

	query, args, err := updateQuery(cityName, update).ToSql()
	if err != nil {
		return 0, persistence("build update", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: rename city %q: %w", domain.ErrPersistence, cityName, domain.ErrDuplicateCity)
		}
		return 0, persistence("update city", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, persistence("rows affected", err)
	}
	return affected, nil
}

// UpsertPollution creates the city as inactive or refreshes its pollution in a
// single statement. created reports which branch ran.
func (r *PostgresRepository) UpsertPollution(ctx context.Context, cityName, countryName string, pollution *float64) (bool, error) {
	query, args, err := upsertQuery(cityName, countryName, pollution).ToSql()
	if err != nil {
		return false, persistence("build upsert", err)
	}

	var created bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&created); err != nil {
		return false, persistence("upsert city", err)
	}
	return created, nil
}

// ListActiveByCountry returns one page of active cities ordered by pollution, highest first.
func (r *PostgresRepository) ListActiveByCountry(ctx context.Context, countryName string, page, limit int) (domain.CityPage, error) {
	countSQL, countArgs, err := countActiveQuery(countryName).ToSql()
	if err != nil {
		return domain.CityPage{}, persistence("build count", err)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return domain.CityPage{}, persistence("count active cities", err)
	}

	listSQL, listArgs, err := listActiveQuery(countryName, page, limit).ToSql()
	if err != nil {
		return domain.CityPage{}, persistence("build list", err)
	}

	rows, err := r.db.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return domain.CityPage{}, persistence("query active cities", err)
	}

	result := domain.CityPage{Total: total, Rows: make([]domain.CityListing, 0, limit)}
	for rows.Next() {
		var (
			listing     domain.CityListing
			pollution   sql.NullFloat64
			description sql.NullString
		)
		if err := rows.Scan(&listing.Name, &pollution, &description, &listing.Country); err != nil {
			_ = rows.Close()
			return domain.CityPage{}, persistence("scan active city", err)
		}
		listing.Pollution = nullFloat(pollution)
		listing.Description = nullString(description)
		result.Rows = append(result.Rows, listing)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return domain.CityPage{}, persistence("rows iteration", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return domain.CityPage{}, persistence("close rows", closeErr)
	}

	return result, nil
}

// ListInactiveWithoutDescription returns up to limit enrichment candidates,
// least recently touched first.
func (r *PostgresRepository) ListInactiveWithoutDescription(ctx context.Context, limit int) ([]domain.City, error) {
	query, args, err := inactiveQuery(limit).ToSql()
	if err != nil {
		return nil, persistence("build candidates query", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("query candidates", err)
	}

	result := make([]domain.City, 0, limit)
	for rows.Next() {
		city, err := scanCity(rows)
		if err != nil {
			_ = rows.Close()
			return nil, persistence("scan candidate", err)
		}
		result = append(result, city)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, persistence("rows iteration", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return nil, persistence("close rows", closeErr)
	}

	return result, nil
}

func existsQuery(cityName string) sq.SelectBuilder {
	return psql.Select("COUNT(*) > 0").From(citiesTable).Where(sq.Eq{"city_name": cityName})
}

func createQuery(city domain.NewCity) sq.InsertBuilder {
	status := city.Status
	if status == "" {
		status = domain.StatusInactive
	}
	return psql.Insert(citiesTable).
		Columns("city_name", "country_name", "pollution", "status").
		Values(city.CityName, city.CountryName, city.Pollution, string(status)).
		Suffix("RETURNING " + strings.Join(cityColumns, ", "))
}

func updateQuery(cityName string, update domain.CityUpdate) sq.UpdateBuilder {
	b := psql.Update(citiesTable)
	if update.CityName != nil {
		b = b.Set("city_name", *update.CityName)
	}
	if update.Pollution != nil {
		b = b.Set("pollution", *update.Pollution)
	}
	if update.Description != nil {
		b = b.Set("description", *update.Description)
	}
	if update.Status != nil {
		b = b.Set("status", string(*update.Status))
	}
	return b.Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"city_name": cityName})
}

func upsertQuery(cityName, countryName string, pollution *float64) sq.InsertBuilder {
	return psql.Insert(citiesTable).
		Columns("city_name", "country_name", "pollution", "status").
		Values(cityName, countryName, pollution, string(domain.StatusInactive)).
		Suffix("ON CONFLICT (city_name) DO UPDATE SET pollution = EXCLUDED.pollution, updated_at = NOW() RETURNING (xmax = 0)")
}

func activeByCountry(countryName string) sq.Eq {
	return sq.Eq{"country_name": countryName, "status": string(domain.StatusActive)}
}

func countActiveQuery(countryName string) sq.SelectBuilder {
	return psql.Select("COUNT(*)").From(citiesTable).Where(activeByCountry(countryName))
}

func listActiveQuery(countryName string, page, limit int) sq.SelectBuilder {
	if page < 1 {
		page = 1
	}
	return psql.Select("city_name", "pollution", "description", "country_name").
		From(citiesTable).
		Where(activeByCountry(countryName)).
		OrderBy("pollution DESC NULLS LAST", "city_name ASC").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit))
}

func inactiveQuery(limit int) sq.SelectBuilder {
	return psql.Select(cityColumns...).
		From(citiesTable).
		Where(sq.Eq{"status": string(domain.StatusInactive), "description": nil}).
		OrderBy("updated_at ASC", "id ASC").
		Limit(uint64(limit))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCity(row rowScanner) (domain.City, error) {
	var (
		city        domain.City
		pollution   sql.NullFloat64
		description sql.NullString
		status      string
	)
	if err := row.Scan(
		&city.ID,
		&city.CityName,
		&city.CountryName,
		&pollution,
		&description,
		&status,
		&city.CreatedAt,
		&city.UpdatedAt,
	); err != nil {
		return domain.City{}, err
	}
	city.Pollution = nullFloat(pollution)
	city.Description = nullString(description)
	city.Status = domain.CityStatus(status)
	return city, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}
