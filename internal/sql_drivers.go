package internal

import (
	// Blank imports register the database/sql drivers used by the SQL
	// publisher and the job-queue publisher.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)
