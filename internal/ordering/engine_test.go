package ordering

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type orderedItem struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	GroupID   int64  `gorm:"column:group_id;not null;default:0"`
	Label     string `gorm:"column:label;not null"`
	SortOrder int    `gorm:"column:sort_order;not null"`
}

func (orderedItem) TableName() string {
	return "ordered_items"
}

func openTestDatabase(testContext *testing.T) *gorm.DB {
	testContext.Helper()
	databasePath := filepath.Join(testContext.TempDir(), "ordering.db")
	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&orderedItem{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}

func newTestEngine(testContext *testing.T) *Engine {
	testContext.Helper()
	engine, err := NewEngine(Config{Table: "ordered_items"})
	if err != nil {
		testContext.Fatalf("failed to construct engine: %v", err)
	}
	return engine
}

func seedItems(testContext *testing.T, database *gorm.DB, groupID int64, labels ...string) []orderedItem {
	testContext.Helper()
	items := make([]orderedItem, 0, len(labels))
	for index, label := range labels {
		item := orderedItem{GroupID: groupID, Label: label, SortOrder: index}
		if err := database.Create(&item).Error; err != nil {
			testContext.Fatalf("failed to seed item %s: %v", label, err)
		}
		items = append(items, item)
	}
	return items
}

func labelsInOrder(testContext *testing.T, database *gorm.DB, groupID int64) []string {
	testContext.Helper()
	var items []orderedItem
	if err := database.Where("group_id = ?", groupID).Order("sort_order ASC, id ASC").Find(&items).Error; err != nil {
		testContext.Fatalf("failed to load items: %v", err)
	}
	labels := make([]string, 0, len(items))
	for index, item := range items {
		if item.SortOrder != index {
			testContext.Fatalf("expected dense order, item %s has position %d at index %d", item.Label, item.SortOrder, index)
		}
		labels = append(labels, item.Label)
	}
	return labels
}

func assertLabels(testContext *testing.T, got []string, want ...string) {
	testContext.Helper()
	if len(got) != len(want) {
		testContext.Fatalf("unexpected labels: got %v want %v", got, want)
	}
	for index := range want {
		if got[index] != want[index] {
			testContext.Fatalf("unexpected labels: got %v want %v", got, want)
		}
	}
}

func TestNewEngineRequiresTable(testContext *testing.T) {
	if _, err := NewEngine(Config{Table: "  "}); err == nil {
		testContext.Fatalf("expected error for missing table")
	}
}

func TestClampBounds(testContext *testing.T) {
	testCases := []struct {
		name       string
		position   int
		count      int
		wantInsert int
		wantMove   int
	}{
		{name: "negative", position: -3, count: 4, wantInsert: 0, wantMove: 0},
		{name: "inside", position: 2, count: 4, wantInsert: 2, wantMove: 2},
		{name: "at-count", position: 4, count: 4, wantInsert: 4, wantMove: 3},
		{name: "beyond", position: 99, count: 4, wantInsert: 4, wantMove: 3},
		{name: "empty", position: 5, count: 0, wantInsert: 0, wantMove: 0},
	}
	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(testContext *testing.T) {
			if got := ClampInsert(testCase.position, testCase.count); got != testCase.wantInsert {
				testContext.Fatalf("ClampInsert(%d, %d) = %d, want %d", testCase.position, testCase.count, got, testCase.wantInsert)
			}
			if got := ClampMove(testCase.position, testCase.count); got != testCase.wantMove {
				testContext.Fatalf("ClampMove(%d, %d) = %d, want %d", testCase.position, testCase.count, got, testCase.wantMove)
			}
		})
	}
}

func TestInsertAtShiftsFollowingRows(testContext *testing.T) {
	database := openTestDatabase(testContext)
	engine := newTestEngine(testContext)
	seedItems(testContext, database, 0, "a", "b", "c")

	err := database.Transaction(func(tx *gorm.DB) error {
		position, err := engine.InsertAt(tx, Scope{}, 1)
		if err != nil {
			return err
		}
		if position != 1 {
			testContext.Fatalf("expected position 1, got %d", position)
		}
		return tx.Create(&orderedItem{Label: "new", SortOrder: position}).Error
	})
	if err != nil {
		testContext.Fatalf("insert failed: %v", err)
	}

	assertLabels(testContext, labelsInOrder(testContext, database, 0), "a", "new", "b", "c")
}

func TestInsertAtClampsBeyondEnd(testContext *testing.T) {
	database := openTestDatabase(testContext)
	engine := newTestEngine(testContext)
	seedItems(testContext, database, 0, "a", "b")

	position, err := engine.InsertAt(database, Scope{}, 42)
	if err != nil {
		testContext.Fatalf("insert failed: %v", err)
	}
	if position != 2 {
		testContext.Fatalf("expected clamped position 2, got %d", position)
	}
	if err := database.Create(&orderedItem{Label: "tail", SortOrder: position}).Error; err != nil {
		testContext.Fatalf("create failed: %v", err)
	}
	assertLabels(testContext, labelsInOrder(testContext, database, 0), "a", "b", "tail")
}

func TestMoveToShiftsOnlyRowsBetween(testContext *testing.T) {
	testCases := []struct {
		name      string
		moveIndex int
		target    int
		want      []string
	}{
		{name: "up", moveIndex: 3, target: 1, want: []string{"a", "d", "b", "c", "e"}},
		{name: "down", moveIndex: 0, target: 3, want: []string{"b", "c", "d", "a", "e"}},
		{name: "clamped", moveIndex: 1, target: 50, want: []string{"a", "c", "d", "e", "b"}},
		{name: "same-position", moveIndex: 2, target: 2, want: []string{"a", "b", "c", "d", "e"}},
	}
	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(testContext *testing.T) {
			database := openTestDatabase(testContext)
			engine := newTestEngine(testContext)
			items := seedItems(testContext, database, 0, "a", "b", "c", "d", "e")

			err := database.Transaction(func(tx *gorm.DB) error {
				_, err := engine.MoveTo(tx, Scope{}, items[testCase.moveIndex].ID, testCase.target)
				return err
			})
			if err != nil {
				testContext.Fatalf("move failed: %v", err)
			}
			assertLabels(testContext, labelsInOrder(testContext, database, 0), testCase.want...)
		})
	}
}

func TestMoveToUnknownKeyReturnsNotFound(testContext *testing.T) {
	database := openTestDatabase(testContext)
	engine := newTestEngine(testContext)
	seedItems(testContext, database, 0, "a")

	if _, err := engine.MoveTo(database, Scope{}, 999, 0); err != ErrEntityNotFound {
		testContext.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestRemoveLeavesGapUntilReindex(testContext *testing.T) {
	database := openTestDatabase(testContext)
	engine := newTestEngine(testContext)
	items := seedItems(testContext, database, 0, "a", "b", "c", "d")

	if err := engine.Remove(database, Scope{}, items[1].ID); err != nil {
		testContext.Fatalf("remove failed: %v", err)
	}
	var remaining []orderedItem
	if err := database.Order("sort_order ASC").Find(&remaining).Error; err != nil {
		testContext.Fatalf("failed to load items: %v", err)
	}
	if len(remaining) != 3 || remaining[1].SortOrder != 2 {
		testContext.Fatalf("expected a gap at position 1, got %+v", remaining)
	}

	rewritten, err := engine.Reindex(database, Scope{})
	if err != nil {
		testContext.Fatalf("reindex failed: %v", err)
	}
	if rewritten != 2 {
		testContext.Fatalf("expected two rows rewritten, got %d", rewritten)
	}
	assertLabels(testContext, labelsInOrder(testContext, database, 0), "a", "c", "d")

	if err := engine.Remove(database, Scope{}, items[1].ID); err != ErrEntityNotFound {
		testContext.Fatalf("expected ErrEntityNotFound on second remove, got %v", err)
	}
}

func TestReindexBreaksTiesByKey(testContext *testing.T) {
	database := openTestDatabase(testContext)
	engine := newTestEngine(testContext)
	for _, item := range []orderedItem{
		{Label: "first", SortOrder: 5},
		{Label: "second", SortOrder: 5},
		{Label: "zero", SortOrder: 0},
		{Label: "third", SortOrder: 5},
	} {
		row := item
		if err := database.Create(&row).Error; err != nil {
			testContext.Fatalf("failed to seed: %v", err)
		}
	}

	if _, err := engine.Reindex(database, Scope{}); err != nil {
		testContext.Fatalf("reindex failed: %v", err)
	}
	assertLabels(testContext, labelsInOrder(testContext, database, 0), "zero", "first", "second", "third")

	rewritten, err := engine.Reindex(database, Scope{})
	if err != nil {
		testContext.Fatalf("second reindex failed: %v", err)
	}
	if rewritten != 0 {
		testContext.Fatalf("expected reindex to be idempotent, rewrote %d rows", rewritten)
	}
}

func TestScopeIsolatesSiblings(testContext *testing.T) {
	database := openTestDatabase(testContext)
	engine := newTestEngine(testContext)
	seedItems(testContext, database, 1, "x", "y")
	seedItems(testContext, database, 2, "p", "q", "r")

	position, err := engine.InsertAt(database, Scope{Column: "group_id", Value: 1}, 0)
	if err != nil {
		testContext.Fatalf("insert failed: %v", err)
	}
	if err := database.Create(&orderedItem{GroupID: 1, Label: "w", SortOrder: position}).Error; err != nil {
		testContext.Fatalf("create failed: %v", err)
	}

	assertLabels(testContext, labelsInOrder(testContext, database, 1), "w", "x", "y")
	assertLabels(testContext, labelsInOrder(testContext, database, 2), "p", "q", "r")

	keys, err := engine.Positions(database, Scope{Column: "group_id", Value: 2})
	if err != nil {
		testContext.Fatalf("positions failed: %v", err)
	}
	if len(keys) != 3 {
		testContext.Fatalf("expected three keys in group 2, got %v", keys)
	}
}
