package ordering

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultKeyColumn   = "id"
	defaultOrderColumn = "sort_order"
)

var (
	// ErrEntityNotFound indicates that a move or remove referenced a row outside the ordered scope.
	ErrEntityNotFound = errors.New("ordering: entity not found")
	errMissingTable   = errors.New("ordering: table name is required")
)

// Config names the table and columns an Engine maintains.
type Config struct {
	Table       string
	KeyColumn   string
	OrderColumn string
}

// Scope restricts an operation to sibling rows sharing a parent column value.
// The zero Scope covers the whole table.
type Scope struct {
	Column string
	Value  any
}

func (s Scope) apply(db *gorm.DB) *gorm.DB {
	if s.Column == "" {
		return db
	}
	return db.Where(fmt.Sprintf("%s = ?", s.Column), s.Value)
}

// Engine keeps a dense 0..N-1 order column over rows with integer keys.
// Every method works on the handle it is given, so callers pass a transaction
// to make a shift and the write that follows it atomic.
type Engine struct {
	table string
	key   string
	order string
}

// NewEngine validates the configuration and applies column defaults.
func NewEngine(cfg Config) (*Engine, error) {
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, errMissingTable
	}
	key := strings.TrimSpace(cfg.KeyColumn)
	if key == "" {
		key = defaultKeyColumn
	}
	order := strings.TrimSpace(cfg.OrderColumn)
	if order == "" {
		order = defaultOrderColumn
	}
	return &Engine{table: table, key: key, order: order}, nil
}

// ClampInsert bounds an insert position to [0, count].
func ClampInsert(position, count int) int {
	if position < 0 {
		return 0
	}
	if position > count {
		return count
	}
	return position
}

// ClampMove bounds a move target to [0, count-1].
func ClampMove(position, count int) int {
	if count <= 0 || position < 0 {
		return 0
	}
	if position > count-1 {
		return count - 1
	}
	return position
}

// Count returns the number of rows in scope.
func (e *Engine) Count(tx *gorm.DB, scope Scope) (int, error) {
	var count int64
	if err := scope.apply(tx.Table(e.table)).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// InsertAt opens a slot at the requested position and returns the clamped
// position the caller must assign to the new row.
func (e *Engine) InsertAt(tx *gorm.DB, scope Scope, requested int) (int, error) {
	count, err := e.Count(tx, scope)
	if err != nil {
		return 0, err
	}
	position := ClampInsert(requested, count)
	if position == count {
		return position, nil
	}
	err = scope.apply(tx.Table(e.table)).
		Where(fmt.Sprintf("%s >= ?", e.order), position).
		Update(e.order, gorm.Expr(fmt.Sprintf("%s + ?", e.order), 1)).Error
	if err != nil {
		return 0, err
	}
	return position, nil
}

// MoveTo relocates the row identified by key, shifting only the rows between
// its old and new positions. Moving a row onto its current position is a no-op.
func (e *Engine) MoveTo(tx *gorm.DB, scope Scope, key int64, requested int) (int, error) {
	var positions []int
	err := scope.apply(tx.Table(e.table)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(fmt.Sprintf("%s = ?", e.key), key).
		Pluck(e.order, &positions).Error
	if err != nil {
		return 0, err
	}
	if len(positions) == 0 {
		return 0, ErrEntityNotFound
	}
	current := positions[0]

	count, err := e.Count(tx, scope)
	if err != nil {
		return 0, err
	}
	target := ClampMove(requested, count)
	if target == current {
		return current, nil
	}

	siblings := scope.apply(tx.Table(e.table)).Where(fmt.Sprintf("%s <> ?", e.key), key)
	if target < current {
		err = siblings.
			Where(fmt.Sprintf("%s >= ? AND %s < ?", e.order, e.order), target, current).
			Update(e.order, gorm.Expr(fmt.Sprintf("%s + ?", e.order), 1)).Error
	} else {
		err = siblings.
			Where(fmt.Sprintf("%s > ? AND %s <= ?", e.order, e.order), current, target).
			Update(e.order, gorm.Expr(fmt.Sprintf("%s - ?", e.order), 1)).Error
	}
	if err != nil {
		return 0, err
	}

	err = tx.Table(e.table).
		Where(fmt.Sprintf("%s = ?", e.key), key).
		Update(e.order, target).Error
	if err != nil {
		return 0, err
	}
	return target, nil
}

// Remove deletes the row without closing the gap it leaves; Reindex restores density.
func (e *Engine) Remove(tx *gorm.DB, scope Scope, key int64) error {
	statement := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", e.table, e.key)
	args := []any{key}
	if scope.Column != "" {
		statement += fmt.Sprintf(" AND %s = ?", scope.Column)
		args = append(args, scope.Value)
	}
	result := tx.Exec(statement, args...)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEntityNotFound
	}
	return nil
}

type orderedRow struct {
	Key      int64 `gorm:"column:row_key"`
	Position int   `gorm:"column:row_position"`
}

// Reindex reassigns positions 0,1,2,... following the current order, breaking
// ties by key so rows created first stay first. Only rows whose position
// changes are written. It returns the number of rows rewritten.
func (e *Engine) Reindex(tx *gorm.DB, scope Scope) (int, error) {
	var rows []orderedRow
	err := scope.apply(tx.Table(e.table)).
		Select(fmt.Sprintf("%s AS row_key, %s AS row_position", e.key, e.order)).
		Order(fmt.Sprintf("%s ASC, %s ASC", e.order, e.key)).
		Scan(&rows).Error
	if err != nil {
		return 0, err
	}

	rewritten := 0
	for index, row := range rows {
		if row.Position == index {
			continue
		}
		err := tx.Table(e.table).
			Where(fmt.Sprintf("%s = ?", e.key), row.Key).
			Update(e.order, index).Error
		if err != nil {
			return rewritten, err
		}
		rewritten++
	}
	return rewritten, nil
}

// Positions lists keys in their current order, mostly for diagnostics and tests.
func (e *Engine) Positions(tx *gorm.DB, scope Scope) ([]int64, error) {
	var keys []int64
	err := scope.apply(tx.Table(e.table)).
		Order(fmt.Sprintf("%s ASC, %s ASC", e.order, e.key)).
		Pluck(e.key, &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}
