package mysql

// MySQL has no fixed schema name: every catalog query filters by the
// connected database, passed as the first parameter.

const queryListTables = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = ? AND table_type = 'BASE TABLE'
	ORDER BY table_name`

const queryColumns = `
	SELECT
		column_name,
		data_type,
		is_nullable,
		COALESCE(column_default, '') AS column_default,
		COALESCE(character_maximum_length, 0) AS character_maximum_length,
		COALESCE(numeric_precision, 0) AS numeric_precision,
		COALESCE(numeric_scale, 0) AS numeric_scale
	FROM information_schema.columns
	WHERE table_schema = ? AND table_name = ?
	ORDER BY ordinal_position`

const queryPrimaryKeys = `
	SELECT column_name
	FROM information_schema.key_column_usage
	WHERE table_schema = ? AND table_name = ? AND constraint_name = 'PRIMARY'`

const queryForeignKeys = `
	SELECT
		column_name,
		referenced_table_name AS referenced_table,
		referenced_column_name AS referenced_column
	FROM information_schema.key_column_usage
	WHERE table_schema = ? AND table_name = ? AND referenced_table_name IS NOT NULL`
