package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidator_AfterMigrations(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationManager(db).ApplyMigrations())

	validator := NewSchemaValidator(db)
	assert.NoError(t, validator.ValidateTablesExist())
	assert.NoError(t, validator.ValidateTableStructure())
	assert.NoError(t, validator.ValidateIndexes())
	assert.NoError(t, validator.Validate())
}

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	validator := NewSchemaValidator(db)

	err := validator.ValidateTablesExist()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestSchemaValidator_WrongColumnType(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`
		CREATE TABLE identities (id TEXT, name TEXT, created_at DATETIME);
		CREATE TABLE messages (id TEXT, sender_id TEXT, receiver_id TEXT, body TEXT, timestamp INTEGER);
	`)
	require.NoError(t, err)

	err = NewSchemaValidator(db).ValidateTableStructure()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timestamp")
}

func TestSchema_BodyMustBeNonEmpty(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationManager(db).ApplyMigrations())

	_, err := db.Exec(`INSERT INTO messages (id, sender_id, receiver_id, body, timestamp) VALUES ('m1', 'a', 'b', '', CURRENT_TIMESTAMP)`)
	assert.Error(t, err)
}
