package sqlassets

import _ "embed"

//go:embed schema/audit.sql
var AuditSQL string

//go:embed schema/users.sql
var UsersSQL string

//go:embed schema/trackers.sql
var TrackersSQL string
