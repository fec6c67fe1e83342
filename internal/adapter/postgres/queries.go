package postgres

const queryListTables = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
	ORDER BY table_name`

const queryColumns = `
	SELECT
		column_name,
		data_type,
		is_nullable = 'YES' AS is_nullable,
		COALESCE(column_default, '') AS column_default,
		COALESCE(character_maximum_length, 0) AS character_maximum_length,
		COALESCE(numeric_precision, 0) AS numeric_precision,
		COALESCE(numeric_scale, 0) AS numeric_scale
	FROM information_schema.columns
	WHERE table_schema = 'public' AND table_name = $1
	ORDER BY ordinal_position`

const queryPrimaryKeys = `
	SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name
	WHERE tc.table_schema = 'public'
		AND tc.table_name = $1
		AND tc.constraint_type = 'PRIMARY KEY'`

const queryForeignKeys = `
	SELECT
		kcu.column_name,
		ccu.table_name AS referenced_table,
		ccu.column_name AS referenced_column
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name
	JOIN information_schema.constraint_column_usage ccu
		ON tc.constraint_name = ccu.constraint_name
	WHERE tc.table_schema = 'public'
		AND tc.table_name = $1
		AND tc.constraint_type = 'FOREIGN KEY'`
