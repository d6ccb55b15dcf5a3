// Package all registers every blob backend.
package all

import (
	_ "github.com/ypatankar/datalake/internal/blob/file"
	_ "github.com/ypatankar/datalake/internal/blob/gcs"
	_ "github.com/ypatankar/datalake/internal/blob/s3"
)
