package database

// This file documents code generation for the database package.
//
// To regenerate schema.sql from the migrations and the sqlc code from queries.sql:
//   go generate ./internal/database

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"
//go:generate sh -c "cd ../.. && sqlc generate -f internal/database/sqlc/sqlc.yaml"
