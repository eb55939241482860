package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// SchemaValidator checks a live database against the tables, columns,
// indexes and constraints the storage layer relies on.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

var requiredTables = map[string]string{
	"users":             "Identity and activity totals",
	"rooms":             "Room catalogue",
	"room_members":      "Private room membership",
	"messages":          "Chat message storage",
	"message_reads":     "Read receipts",
	"message_hides":     "Per-user deletions",
	"system_settings":   "Global switches",
	"schema_migrations": "Migration tracking",
}

var requiredIndexes = map[string]string{
	"idx_room_members_user":  "Membership lookups by user",
	"idx_messages_room_time": "Room history retrieval",
	"idx_messages_user":      "Messages by author",
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range sortedKeys(requiredTables) {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, requiredTables[table], err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, requiredTables[table])
		}
	}
	return nil
}

// ValidateTableStructure verifies column types of the tables the storage
// manager scans into Go structs.
func (v *SchemaValidator) ValidateTableStructure() error {
	expected := map[string]map[string]string{
		"users": {
			"id":                "TEXT",
			"username":          "TEXT",
			"avatar_url":        "TEXT",
			"role":              "TEXT",
			"is_active":         "INTEGER",
			"total_active_time": "INTEGER",
			"last_seen":         "DATETIME",
		},
		"rooms": {
			"id":         "TEXT",
			"name":       "TEXT",
			"is_private": "INTEGER",
		},
		"messages": {
			"id":           "TEXT",
			"room_id":      "TEXT",
			"user_id":      "TEXT",
			"content":      "TEXT",
			"message_type": "TEXT",
			"is_encrypted": "INTEGER",
			"created_at":   "DATETIME",
			"edited_at":    "DATETIME",
		},
	}

	for _, table := range []string{"users", "rooms", "messages"} {
		if err := v.validateColumns(table, expected[table]); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range sortedKeys(requiredIndexes) {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, requiredIndexes[index], err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, requiredIndexes[index])
		}
	}
	return nil
}

// ValidateConstraints verifies that foreign keys and check constraints are
// enforced. It writes nothing that survives the call.
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT INTO room_members (room_id, user_id) VALUES ('__missing_room__', '__missing_user__')`); err == nil {
		return fmt.Errorf("foreign key constraint not enforced: room_members.room_id")
	}

	if _, err := tx.Exec(`INSERT INTO users (id, username, role) VALUES ('__check__', '__check__', 'superuser')`); err == nil {
		return fmt.Errorf("check constraint not enforced: users.role")
	}

	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range sortedKeys(expectedColumns) {
		foundType, ok := foundColumns[col]
		if !ok {
			return fmt.Errorf("column %s not found", col)
		}
		if foundType != expectedColumns[col] {
			return fmt.Errorf("column %s has type %s, expected %s", col, foundType, expectedColumns[col])
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
