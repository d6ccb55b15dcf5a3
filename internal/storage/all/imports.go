// Package all registers every built-in warehouse backend with the storage
// factory. Import it for side effects:
//
//	import _ "github.com/ypatankar/datalake/internal/storage/all"
//
// after which storage.New accepts the kinds "postgres", "mysql", "mssql" and
// "sqlite". A binary that needs fewer backends can import the backend
// packages directly instead.
package all

import (
	_ "github.com/ypatankar/datalake/internal/storage/mssql"
	_ "github.com/ypatankar/datalake/internal/storage/mysql"
	_ "github.com/ypatankar/datalake/internal/storage/postgres"
	_ "github.com/ypatankar/datalake/internal/storage/sqlite"
)
